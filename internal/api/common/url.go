package common

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ddr-tools/gitstatusd/internal/collection"
)

// URLParam extracts and decodes a chi URL parameter, rejecting blank values
func URLParam(r *http.Request, paramName string) (string, error) {
	decoded, err := url.PathUnescape(chi.URLParam(r, paramName))
	if err != nil {
		return "", fmt.Errorf("invalid URL encoding in %s", paramName)
	}
	if strings.TrimSpace(decoded) == "" {
		return "", fmt.Errorf("%s cannot be empty", paramName)
	}
	return decoded, nil
}

// CollectionID extracts the {collectionID} parameter, which must be of the form repo-org-number
func CollectionID(r *http.Request) (string, error) {
	id, err := URLParam(r, "collectionID")
	if err != nil {
		return "", err
	}
	if !collection.ValidID(id) {
		return "", fmt.Errorf("invalid collection id %q", id)
	}
	return id, nil
}
