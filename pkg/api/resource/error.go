package resource

// ErrorResource is the JSON body of every non-2xx answer.
type ErrorResource struct {
	Message string `json:"message"`
}

func NewError(err error) *ErrorResource {
	return &ErrorResource{Message: err.Error()}
}
