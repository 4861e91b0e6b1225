package app

import (
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"testing"
)

func TestAPIModule_Graph(t *testing.T) {
	require.NoError(t, fx.ValidateApp(APIModule))
}

func TestWorkerModule_Graph(t *testing.T) {
	require.NoError(t, fx.ValidateApp(WorkerModule))
}
