package swiftchain

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
)

// RecvBytes sends the request and returns the whole response body.
func (r *Request) RecvBytes(ctx context.Context) ([]byte, error) {
	resp, err := r.Send(ctx)
	if err != nil {
		return nil, err
	}

	data, _, err := r.readBody(resp)
	return data, err
}

// RecvString sends the request and returns the response body as a string.
func (r *Request) RecvString(ctx context.Context) (string, error) {
	data, err := r.RecvBytes(ctx)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// RecvJSON sends the request and decodes the JSON response body into v.
func (r *Request) RecvJSON(ctx context.Context, v interface{}) error {
	resp, err := r.Send(ctx)
	if err != nil {
		return err
	}

	data, statusCode, err := r.readBody(resp)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, v); err != nil {
		return decodeError("error unmarshaling response for request "+r.url.String(), err, statusCode)
	}

	return nil
}

// Do sends r and converts the response body into a T.
//
// JSON bodies (or bodies without a Content-Type) are unmarshaled. Other bodies can be converted
// to string, int, float64 or float32.
func Do[T any](ctx context.Context, r *Request) (*T, error) {
	resp, err := r.Send(ctx)
	if err != nil {
		return nil, err
	}

	var contentType string
	if resp != nil {
		contentType = resp.Header.Get("Content-Type")
	}

	responseData, statusCode, err := r.readBody(resp)
	if err != nil {
		return nil, err
	}

	var responseObject T
	if strings.Contains(contentType, "application/json") || contentType == "" {
		if err := json.Unmarshal(responseData, &responseObject); err != nil {
			return nil, decodeError("error unmarshaling response for request "+r.url.String(), err, statusCode)
		}
		return &responseObject, nil
	}

	dataAsString := strings.TrimSpace(string(responseData))
	var parseErr error
	switch any(responseObject).(type) {
	case string:
		responseObject = any(string(responseData)).(T)
	case int:
		data, err := strconv.Atoi(dataAsString)
		responseObject = any(data).(T)
		parseErr = err
	case float64:
		data, err := strconv.ParseFloat(dataAsString, 64)
		responseObject = any(data).(T)
		parseErr = err
	case float32:
		data, err := strconv.ParseFloat(dataAsString, 32)
		responseObject = any(float32(data)).(T)
		parseErr = err
	default:
		parseErr = fmt.Errorf("unsupported conversion type: %T", responseObject)
	}

	if parseErr != nil {
		return nil, decodeError("error converting response for request "+r.url.String(), parseErr, statusCode)
	}

	return &responseObject, nil
}

// readBody drains and closes resp.Body. A status of 400 or above is reported as an ErrStatus error
// with the body as its cause.
func (r *Request) readBody(resp *http.Response) ([]byte, int, error) {
	if resp == nil {
		return nil, 0, decodeError(fmt.Sprintf("calling %s returned empty response", r.url.String()), nil, 0)
	}

	responseData, err := readAllAndCloseLimit(resp.Body, r.client.MaxBodyBytes)
	if err != nil {
		return nil, resp.StatusCode, decodeError("failed to read response body for url request "+r.url.String(), err, resp.StatusCode)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, resp.StatusCode, &Error{
			Kind:       ErrStatus,
			Message:    fmt.Sprintf("error calling %s", r.url.String()),
			Cause:      fmt.Errorf("%s", responseData),
			StatusCode: resp.StatusCode,
		}
	}

	return responseData, resp.StatusCode, nil
}

// readAllAndCloseLimit reads at most limit bytes from body and always closes it.
// A limit of zero or less reads everything.
func readAllAndCloseLimit(body io.ReadCloser, limit int64) ([]byte, error) {
	if body == nil {
		return nil, nil
	}

	defer func() {
		_ = body.Close()
	}()

	if limit <= 0 {
		return io.ReadAll(body)
	}

	// Read up to limit+1 so we can detect overflow.
	n := limit
	if limit < math.MaxInt64 {
		n = limit + 1
	}
	b, err := io.ReadAll(&io.LimitedReader{R: body, N: n})
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > limit {
		return nil, ErrBodyTooLarge
	}
	return b, nil
}
