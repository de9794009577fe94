package dav

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"filippo.io/age"
)

// HTTPClientWithEncryption returns an HTTP client that encrypts request
// bodies and decrypts response bodies with age X25519 keys. Useful when
// talking to a DAV store through an untrusted relay that proxies
// payloads verbatim.
//
// Headers are not encrypted; pair this with HTTPClientWithBasicAuth
// only over TLS.
func HTTPClientWithEncryption(c HTTPClient, identity *age.X25519Identity, recipient *age.X25519Recipient) HTTPClient {
	if c == nil {
		c = http.DefaultClient
	}
	return &encryptedHTTPClient{c: c, identity: identity, recipient: recipient}
}

type encryptedHTTPClient struct {
	c         HTTPClient
	identity  *age.X25519Identity
	recipient *age.X25519Recipient
}

func (c *encryptedHTTPClient) Do(req *http.Request) (*http.Response, error) {
	encReq := *req
	if req.Body != nil {
		var encBody bytes.Buffer
		w, err := age.Encrypt(&encBody, c.recipient)
		if err != nil {
			return nil, fmt.Errorf("webdav: failed to encrypt request body: %w", err)
		}
		if _, err := io.Copy(w, req.Body); err != nil {
			return nil, fmt.Errorf("webdav: failed to encrypt request body: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("webdav: failed to encrypt request body: %w", err)
		}
		encReq.Body = io.NopCloser(&encBody)
		encReq.ContentLength = int64(encBody.Len())
	}

	encResp, err := c.c.Do(&encReq)
	if err != nil {
		return nil, err
	}
	if encResp.Body == http.NoBody || encResp.ContentLength == 0 {
		return encResp, nil
	}

	resp := *encResp
	decBody, err := age.Decrypt(encResp.Body, c.identity)
	if err != nil {
		return nil, fmt.Errorf("webdav: failed to decrypt response body: %w", err)
	}
	resp.Body = io.NopCloser(decBody)
	resp.ContentLength = -1
	return &resp, nil
}
