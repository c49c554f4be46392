package endpoints

import (
	"io"
	"net/http"
	"strconv"

	"github.com/agubarev/orgkeeper/pkg/util"
	"github.com/go-chi/chi"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// maximum accepted request body
const maxBodySize = 1 << 20

// IDParam parses a uuid URL parameter
func IDParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, errors.Wrapf(ErrMalformedRequest, "invalid %s: %s", name, err)
	}

	return id, nil
}

// IntQuery parses an optional integer query parameter
func IntQuery(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}

	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.Wrapf(ErrMalformedRequest, "invalid %s %q", name, v)
	}

	return n, nil
}

// Decode reads a JSON request body into v
func Decode(r *http.Request, v interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return errors.Wrap(ErrMalformedRequest, err.Error())
	}

	if err = util.JSON.Unmarshal(body, v); err != nil {
		return errors.Wrap(ErrMalformedRequest, err.Error())
	}

	return nil
}
