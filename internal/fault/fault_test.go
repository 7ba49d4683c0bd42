package fault

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "nil", err: nil, want: ""},
		{name: "classified", err: New(KindName, "Arrears2"), want: KindName},
		{name: "wrapped classified", err: fmt.Errorf("outer: %w", New(KindSyntax, "")), want: KindSyntax},
		{name: "deadline", err: context.DeadlineExceeded, want: KindTimeout},
		{name: "canceled", err: fmt.Errorf("call: %w", context.Canceled), want: KindTimeout},
		{name: "plain", err: errors.New("boom"), want: KindCompute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestWrap(t *testing.T) {
	assert.NoError(t, Wrap(KindCompute, nil, "x"))

	cause := errors.New("open /etc/passwd: permission denied")
	err := Wrap(KindDatasetUnavailable, cause, "loans")
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, KindDatasetUnavailable, KindOf(err))
	assert.Equal(t, "loans", DetailOf(err))
}

func TestMessage(t *testing.T) {
	kinds := []Kind{
		KindSyntax, KindName, KindCompute, KindDatasetUnavailable,
		KindTimeout, KindLoopExhausted, KindParse, KindInvalidQuery,
		KindQueryTooLong, KindSQL,
	}
	seen := make(map[string]Kind)
	for _, k := range kinds {
		msg := Message(k)
		assert.NotEmpty(t, msg, "kind %s", k)
		if prev, ok := seen[msg]; ok {
			t.Errorf("kinds %s and %s share a message", prev, k)
		}
		seen[msg] = k
	}

	assert.Equal(t, Message(KindParse), Message(Kind("UNKNOWN")))
}

func TestToneOf(t *testing.T) {
	assert.Equal(t, ToneNormal, ToneOf(""))
	assert.Equal(t, ToneCautionary, ToneOf(KindTimeout))
}
