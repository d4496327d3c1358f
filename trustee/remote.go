// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package trustee

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/hashicorp/cryptainer/cryptoconf"
	"github.com/hashicorp/cryptainer/cryptainererrors"
	cleanhttp "github.com/hashicorp/go-cleanhttp"
	retryablehttp "github.com/hashicorp/go-retryablehttp"
)

// RemoteTrustee forwards the Trustee surface over JSON-RPC to a trustee
// server, using go-retryablehttp (backed by go-cleanhttp's pooled transport)
// for the client connection -- retrying idempotent calls transparently on
// transient network failures, the same combination vault/api layers on top
// of its own HTTP client.
type RemoteTrustee struct {
	url    string
	client *retryablehttp.Client
}

// NewRemoteTrustee returns a RemoteTrustee proxying calls to url.
func NewRemoteTrustee(url string) *RemoteTrustee {
	client := retryablehttp.NewClient()
	client.HTTPClient = cleanhttp.DefaultPooledClient()
	client.Logger = nil
	return &RemoteTrustee{url: url, client: client}
}

type jsonrpcRequest struct {
	Method string `json:"method"`
	Params any    `json:"params"`
}

type jsonrpcError struct {
	Slug    string `json:"slug"`
	Message string `json:"message"`
}

type jsonrpcResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *jsonrpcError   `json:"error,omitempty"`
}

func (t *RemoteTrustee) call(method string, params, result any) error {
	body, err := json.Marshal(jsonrpcRequest{Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("trustee: failed to encode request: %w", err)
	}

	req, err := retryablehttp.NewRequest(http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("trustee: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("trustee: RPC call to %s failed: %w", t.url, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("trustee: failed to read response: %w", err)
	}

	var rpcResp jsonrpcResponse
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		return fmt.Errorf("trustee: malformed RPC response: %w", err)
	}
	if rpcResp.Error != nil {
		return mapStatusSlug(rpcResp.Error.Slug, rpcResp.Error.Message)
	}
	if result != nil && len(rpcResp.Result) > 0 {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("trustee: failed to decode RPC result: %w", err)
		}
	}
	return nil
}

// mapStatusSlug maps a server-side status slug back to the local error
// taxonomy of cryptainererrors.
func mapStatusSlug(slug, message string) error {
	var sentinel error
	switch slug {
	case "key_does_not_exist":
		sentinel = cryptainererrors.ErrKeyDoesNotExist
	case "key_already_exists":
		sentinel = cryptainererrors.ErrKeyAlreadyExists
	case "key_loading_error":
		sentinel = cryptainererrors.ErrKeyLoadingError
	case "decryption_error":
		sentinel = cryptainererrors.ErrDecryptionError
	case "decryption_integrity_error":
		sentinel = cryptainererrors.ErrDecryptionIntegrityError
	case "authorization_error":
		sentinel = cryptainererrors.ErrAuthorizationError
	case "configuration_error":
		sentinel = cryptainererrors.ErrConfigurationError
	case "validation_error":
		sentinel = cryptainererrors.ErrValidationError
	case "value_error":
		sentinel = cryptainererrors.ErrValueError
	default:
		return fmt.Errorf("trustee: remote error (%s): %s", slug, message)
	}
	return fmt.Errorf("%w: %s", sentinel, message)
}

func (t *RemoteTrustee) FetchPublicKey(keychainUID string, algo cryptoconf.KeyCipherAlgo, mustExist bool) ([]byte, error) {
	var result struct {
		PublicKey []byte `json:"public_key"`
	}
	err := t.call("fetch_public_key", map[string]any{
		"keychain_uid": keychainUID,
		"key_algo":     algo,
		"must_exist":   mustExist,
	}, &result)
	if err != nil {
		return nil, err
	}
	return result.PublicKey, nil
}

func (t *RemoteTrustee) GetMessageSignature(keychainUID string, message []byte, signatureAlgo cryptoconf.SignatureAlgo) (*cryptoconf.PayloadSignature, error) {
	if len(message) > maxSignatureInputBytes {
		return nil, fmt.Errorf("%w: message of %d bytes exceeds the %d-byte signature input ceiling, pre-hash it first",
			cryptainererrors.ErrValueError, len(message), maxSignatureInputBytes)
	}
	var result cryptoconf.PayloadSignature
	err := t.call("get_message_signature", map[string]any{
		"keychain_uid":   keychainUID,
		"message":        message,
		"signature_algo": signatureAlgo,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (t *RemoteTrustee) RequestDecryptionAuthorization(keypairs []KeypairIdentifier, requestMessage []byte, passphrases map[string][]string) (*AuthorizationResult, error) {
	var result struct {
		ResponseMessage []byte                   `json:"response_message"`
		HasErrors       bool                     `json:"has_errors"`
		KeypairStatuses []keypairStatusWireEntry `json:"keypair_statuses"`
	}
	err := t.call("request_decryption_authorization", map[string]any{
		"keypairs":        keypairs,
		"request_message": requestMessage,
		"passphrases":     passphrases,
	}, &result)
	if err != nil {
		return nil, err
	}

	statuses := make(map[KeypairIdentifier]KeypairStatus, len(result.KeypairStatuses))
	for _, entry := range result.KeypairStatuses {
		statuses[entry.KeypairIdentifier] = entry.Status
	}
	return &AuthorizationResult{
		ResponseMessage: result.ResponseMessage,
		HasErrors:       result.HasErrors,
		KeypairStatuses: statuses,
	}, nil
}

type keypairStatusWireEntry struct {
	KeypairIdentifier KeypairIdentifier `json:"keypair"`
	Status            KeypairStatus     `json:"status"`
}

func (t *RemoteTrustee) DecryptWithPrivateKey(keychainUID string, algo cryptoconf.KeyCipherAlgo, cipherdict []byte, passphrases []string) ([]byte, error) {
	var result struct {
		Plaintext []byte `json:"plaintext"`
	}
	err := t.call("decrypt_with_private_key", map[string]any{
		"keychain_uid": keychainUID,
		"key_algo":     algo,
		"cipherdict":   cipherdict,
		"passphrases":  passphrases,
	}, &result)
	if err != nil {
		return nil, err
	}
	return result.Plaintext, nil
}
