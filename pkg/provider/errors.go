package provider

import (
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for provider operations.
var (
	// ErrNotFound indicates the requested object does not exist.
	ErrNotFound = errors.New("object not found")

	// ErrAccessDenied indicates insufficient permissions.
	ErrAccessDenied = errors.New("access denied")

	// ErrBucketNotFound indicates the bucket does not exist.
	ErrBucketNotFound = errors.New("bucket not found")

	// ErrBadRequest indicates the backend rejected the request as malformed.
	ErrBadRequest = errors.New("bad request")

	// ErrInvalidCredentials indicates authentication failed.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrProviderUnavailable indicates the provider service is unavailable.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrThrottled indicates the request was rate limited by the provider.
	ErrThrottled = errors.New("request throttled")
)

// ProviderError wraps provider-specific errors with context.
type ProviderError struct {
	// Op is the operation that failed (e.g., "HeadBucket", "PutObjectACL").
	Op string

	// Provider is the provider type (e.g., "s3").
	Provider ProviderType

	// Bucket is the bucket name, if applicable.
	Bucket string

	// Key is the object key, if applicable.
	Key string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s %s: %s/%s: %v", e.Provider, e.Op, e.Bucket, e.Key, e.Err)
	}
	if e.Bucket != "" {
		return fmt.Sprintf("%s %s: %s: %v", e.Provider, e.Op, e.Bucket, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// BadRequestError carries the structured body of a rejected request.
//
// It matches ErrBadRequest under errors.Is.
type BadRequestError struct {
	// Code is the backend error code (e.g., "MalformedACLError").
	Code string

	// Body is the error body as returned by the backend: a JSON document,
	// an S3 XML error document, or plain text.
	Body string
}

// Error implements the error interface.
func (e *BadRequestError) Error() string {
	msgs := e.Messages()
	switch {
	case e.Code != "" && len(msgs) > 0:
		return fmt.Sprintf("%s: %s: %s", ErrBadRequest, e.Code, strings.Join(msgs, "; "))
	case e.Code != "":
		return fmt.Sprintf("%s: %s", ErrBadRequest, e.Code)
	case len(msgs) > 0:
		return fmt.Sprintf("%s: %s", ErrBadRequest, strings.Join(msgs, "; "))
	}
	return ErrBadRequest.Error()
}

// Is reports whether target is ErrBadRequest.
func (e *BadRequestError) Is(target error) bool {
	return target == ErrBadRequest
}

// Messages parses the error body into its individual messages.
//
// Recognised shapes, in order:
//   - JSON: {"Message": ["a", "b"]} or {"Message": "a"}
//   - S3 XML: <Error><Code>..</Code><Message>a</Message></Error>
//   - anything else: the trimmed body as a single message
//
// An empty body yields no messages.
func (e *BadRequestError) Messages() []string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return nil
	}

	if strings.HasPrefix(body, "{") {
		if msgs, ok := parseJSONMessages(body); ok {
			return msgs
		}
	}

	if strings.HasPrefix(body, "<") {
		if msgs, ok := parseXMLMessages(body); ok {
			return msgs
		}
	}

	return []string{body}
}

func parseJSONMessages(body string) ([]string, bool) {
	var doc struct {
		Message json.RawMessage `json:"Message"`
	}
	if err := json.Unmarshal([]byte(body), &doc); err != nil || len(doc.Message) == 0 {
		return nil, false
	}

	var list []string
	if err := json.Unmarshal(doc.Message, &list); err == nil {
		return list, true
	}

	var single string
	if err := json.Unmarshal(doc.Message, &single); err == nil {
		return []string{single}, true
	}

	return nil, false
}

func parseXMLMessages(body string) ([]string, bool) {
	var doc struct {
		XMLName  xml.Name `xml:"Error"`
		Messages []string `xml:"Message"`
	}
	if err := xml.Unmarshal([]byte(body), &doc); err != nil {
		return nil, false
	}
	return doc.Messages, true
}

// IsNotFound returns true if the error indicates an object was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAccessDenied returns true if the error indicates insufficient permissions.
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}

// IsBucketNotFound returns true if the error indicates the bucket does not exist.
func IsBucketNotFound(err error) bool {
	return errors.Is(err, ErrBucketNotFound)
}

// IsBadRequest returns true if the backend rejected the request as malformed.
func IsBadRequest(err error) bool {
	return errors.Is(err, ErrBadRequest)
}

// IsInvalidCredentials returns true if the error indicates authentication failed.
func IsInvalidCredentials(err error) bool {
	return errors.Is(err, ErrInvalidCredentials)
}

// IsProviderUnavailable returns true if the error indicates the provider service is unavailable.
func IsProviderUnavailable(err error) bool {
	return errors.Is(err, ErrProviderUnavailable)
}

// IsThrottled returns true if the error indicates the request was rate limited.
func IsThrottled(err error) bool {
	return errors.Is(err, ErrThrottled)
}
