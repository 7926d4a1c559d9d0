package structurer

import "fmt"

// ResponseParseError indicates the model response was not a valid JSON
// object after code-fence stripping. Raw carries a truncated copy of the
// response for diagnosis.
type ResponseParseError struct {
	Raw string
	Err error
}

func (e *ResponseParseError) Error() string {
	return fmt.Sprintf("model response is not valid JSON: %v (raw: %s)", e.Err, e.Raw)
}

func (e *ResponseParseError) Unwrap() error {
	return e.Err
}
