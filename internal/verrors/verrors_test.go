package verrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	err := Newf(KindNotFound, "fetch", "remote file not found")
	assert.Equal(t, KindNotFound, KindOf(err))

	wrapped := fmt.Errorf("outer: %w", err)
	assert.Equal(t, KindNotFound, KindOf(wrapped))

	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"not found is terminal", Newf(KindNotFound, "op", "404"), false},
		{"configuration is terminal", Newf(KindConfiguration, "op", "bad date"), false},
		{"local io is terminal", Newf(KindLocalIO, "op", "disk full"), false},
		{"transient retries", Newf(KindTransient, "op", "503"), true},
		{"unclassified retries", errors.New("connection reset"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Retryable(tt.err))
		})
	}
}

func TestFromHTTPStatus(t *testing.T) {
	assert.Equal(t, KindNotFound, FromHTTPStatus("fetch", http.StatusNotFound).Kind)
	assert.Equal(t, KindTransient, FromHTTPStatus("fetch", http.StatusTooManyRequests).Kind)
	assert.Equal(t, KindTransient, FromHTTPStatus("fetch", http.StatusInternalServerError).Kind)
	assert.Equal(t, KindTransient, FromHTTPStatus("fetch", http.StatusForbidden).Kind)
}

func TestClassify(t *testing.T) {
	t.Run("nil passes through", func(t *testing.T) {
		assert.NoError(t, Classify("op", nil))
	})

	t.Run("classified errors keep their kind", func(t *testing.T) {
		orig := Newf(KindNotFound, "fetch", "404")
		assert.Equal(t, KindNotFound, KindOf(Classify("op", orig)))
	})

	t.Run("plain errors become transient", func(t *testing.T) {
		assert.Equal(t, KindTransient, KindOf(Classify("op", errors.New("reset"))))
	})
}

func TestErrorIs(t *testing.T) {
	sentinel := errors.New("sentinel")
	err := New(KindTransient, "op", sentinel)

	assert.ErrorIs(t, err, sentinel)
	assert.ErrorIs(t, err, &Error{Kind: KindTransient})
	assert.NotErrorIs(t, err, &Error{Kind: KindNotFound})
}
