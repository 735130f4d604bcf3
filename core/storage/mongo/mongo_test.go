package mongo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConnectRequiresDatabase(t *testing.T) {
	_, err := Connect(context.Background(), Config{Address: "127.0.0.1"})
	require.Error(t, err)
}

// Connect must fail cleanly when called before the process logger is
// initialized.
func TestConnectFailureBeforeLoggerInit(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Connect(ctx, Config{Address: "127.0.0.1", Port: 27017, Database: "botkit"})
	req.Error(err)
}
