package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders(" api-key = abc ,broken, =x,tenant=matchpool")
	require.Equal(t, map[string]string{"api-key": "abc", "tenant": "matchpool"}, headers)
	require.Empty(t, ParseHeaders(""))
}

func TestInitDisabledIsNoop(t *testing.T) {
	_, err := Init(context.Background(), Config{})
	require.Error(t, err)

	shutdown, err := Init(context.Background(), Config{ServiceName: "matchpoold"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
