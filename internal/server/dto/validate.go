// Defines the validation interface for requests.

package dto

// Validatable is implemented by request types that can validate their fields.
// The Wrap function in handler_wrapper.go uses this interface as a type
// constraint to ensure all request types provide validation.
type Validatable interface {
	Validate() error
}

// BodyReceiver is implemented by requests that consume the raw body
// themselves instead of having it decoded as JSON by the wrapper.
type BodyReceiver interface {
	SetBody(body BodyFunc)
}

// BodyFunc reads the whole request body, enforcing the size quota.
type BodyFunc func() ([]byte, error)
