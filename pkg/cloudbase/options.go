package cloudbase

type requestOptions struct {
	bearer   string
	skipAuth bool
	headers  map[string]string
}

// RequestOption adjusts a single request.
type RequestOption func(*requestOptions)

// WithBearer sends token instead of the client's own credentials.
func WithBearer(token string) RequestOption {
	return func(o *requestOptions) { o.bearer = token }
}

// WithoutAuth sends the request with no Authorization or API key header.
func WithoutAuth() RequestOption {
	return func(o *requestOptions) { o.skipAuth = true }
}

// WithHeader adds a header to the request.
func WithHeader(key, value string) RequestOption {
	return func(o *requestOptions) {
		if o.headers == nil {
			o.headers = make(map[string]string)
		}
		o.headers[key] = value
	}
}
