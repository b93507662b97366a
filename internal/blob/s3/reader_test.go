package s3blob

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/peterldowns/testy/check"

	"github.com/alanyoungcy/gemauction/internal/domain"
)

func TestClassify(t *testing.T) {
	status := func(code int) error {
		return &smithyhttp.ResponseError{
			Response: &smithyhttp.Response{Response: &http.Response{StatusCode: code}},
			Err:      errors.New("status"),
		}
	}
	denied := &smithy.GenericAPIError{Code: "AccessDenied"}

	cases := []struct {
		name     string
		err      error
		notFound bool
	}{
		{"no such key", &smithy.GenericAPIError{Code: "NoSuchKey"}, true},
		{"head not found", fmt.Errorf("operation error: %w", &smithy.GenericAPIError{Code: "NotFound"}), true},
		{"bare 404", status(http.StatusNotFound), true},
		{"access denied", denied, false},
		{"server error", status(http.StatusInternalServerError), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classify(tc.err)
			check.Equal(t, tc.notFound, errors.Is(got, domain.ErrNotFound))
		})
	}

	check.True(t, errors.Is(classify(denied), denied))
	check.NoError(t, classify(nil))
}
