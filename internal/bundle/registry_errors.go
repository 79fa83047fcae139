package bundle

import (
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote/transport"

	"github.com/felixgeelhaar/reprobox/internal/errors"
)

const loginSuggestion = "Log in with 'docker login <registry>'; credentials are read from ~/.docker/config.json"

// ClassifyRegistryError wraps a go-containerregistry failure in a BoxError
// carrying a REGISTRY code and a hint for the user. Errors that already
// carry a BoxError are returned unchanged.
func ClassifyRegistryError(err error, ref, operation string) error {
	if err == nil {
		return nil
	}
	if _, ok := errors.As(err); ok {
		return err
	}

	var transportErr *transport.Error
	if stderrors.As(err, &transportErr) {
		return classifyTransportError(transportErr, ref, operation)
	}

	var nameErr *name.ErrBadName
	if stderrors.As(err, &nameErr) {
		return errors.Wrap(errors.ErrCodeRegistryReference, fmt.Sprintf("invalid registry reference: %s", ref), err).
			WithSuggestion("References look like registry.example.com/team/experiment:v1")
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) {
		msg := fmt.Sprintf("network error during %s of %s", operation, ref)
		if netErr.Timeout() {
			msg = fmt.Sprintf("connection to registry timed out during %s of %s", operation, ref)
		}
		return errors.Wrap(errors.ErrCodeRegistryNetwork, msg, err).
			WithSuggestion("Check the registry address and your network connection").
			WithSuggestion("For plain HTTP registries, pass --insecure")
	}

	errMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errMsg, "unauthorized") || strings.Contains(errMsg, "authentication required"):
		return errors.Wrap(errors.ErrCodeRegistryAuth, fmt.Sprintf("authentication failed for %s", ref), err).
			WithSuggestion(loginSuggestion)
	case strings.Contains(errMsg, "forbidden") || strings.Contains(errMsg, "denied"):
		return errors.Wrap(errors.ErrCodeRegistryAuth, fmt.Sprintf("permission denied for %s", ref), err).
			WithSuggestion("Check that your credentials may " + operation + " this repository")
	case strings.Contains(errMsg, "not found") || strings.Contains(errMsg, "manifest unknown"):
		return errors.Wrap(errors.ErrCodeRegistryNotFound, fmt.Sprintf("pack not found: %s", ref), err).
			WithSuggestion("Check the repository name and tag")
	}

	return errors.Wrap(errors.ErrCodeRegistryUnknown, fmt.Sprintf("registry %s failed for %s", operation, ref), err)
}

func classifyTransportError(err *transport.Error, ref, operation string) error {
	switch {
	case err.StatusCode == http.StatusUnauthorized:
		return errors.Wrap(errors.ErrCodeRegistryAuth, fmt.Sprintf("authentication required for %s", ref), err).
			WithSuggestion(loginSuggestion)
	case err.StatusCode == http.StatusForbidden:
		return errors.Wrap(errors.ErrCodeRegistryAuth, fmt.Sprintf("access forbidden: %s", ref), err).
			WithSuggestion("Check that your credentials may " + operation + " this repository")
	case err.StatusCode == http.StatusNotFound:
		return errors.Wrap(errors.ErrCodeRegistryNotFound, fmt.Sprintf("repository or tag not found: %s", ref), err).
			WithSuggestion("Check the repository name and tag")
	case err.StatusCode == http.StatusTooManyRequests:
		return errors.Wrap(errors.ErrCodeRegistryNetwork, "registry rate limit exceeded", err).
			WithSuggestion("Wait a few minutes, or authenticate to raise the limit")
	case err.StatusCode >= 500:
		return errors.Wrap(errors.ErrCodeRegistryNetwork, fmt.Sprintf("registry server error (HTTP %d)", err.StatusCode), err).
			WithSuggestion("Retry later or check the registry status page")
	default:
		return errors.Wrap(errors.ErrCodeRegistryUnknown, fmt.Sprintf("registry HTTP error %d during %s", err.StatusCode, operation), err)
	}
}
