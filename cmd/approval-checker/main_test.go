package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/JoeanSteinbock/address-approval-checker/internal/audit/exposure"
	"github.com/JoeanSteinbock/address-approval-checker/internal/chain"
	"github.com/JoeanSteinbock/address-approval-checker/internal/chain/mocks"
	"github.com/JoeanSteinbock/address-approval-checker/internal/config"
	"github.com/JoeanSteinbock/address-approval-checker/internal/input"
)

var (
	usdt    = common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7")
	wallet  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	spender = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
)

// isolateEnv blanks every variable the config reads so the host environment
// cannot leak into a run.
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"RPC_URL", "WALLETS_FILE", "TOKENS_FILE", "SPENDERS_FILE", "TARGETS_FILE",
		"ADVANCED_MODE", "FROM_BLOCK", "TO_BLOCK", "BATCH_SIZE", "DISPLAY_LIMIT",
		"OUTPUT_FILE", "LOG_LEVEL", "LOG_FORMAT", "METRICS_ADDR", "TRACING_ENABLED",
		"ALERT_SLACK_WEBHOOK_URL", "ALERT_WEBHOOK_URL", "ALERT_USD_THRESHOLD",
		"PROGRESS_THROTTLE_MS", "PROGRESS_TICK_MS",
	} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
	t.Setenv("PROGRESS_TICK_MS", "0")
}

func useClient(t *testing.T, client chain.Client) {
	t.Helper()
	orig := newClient
	newClient = func(*config.Config, *slog.Logger) chain.Client { return client }
	t.Cleanup(func() { newClient = orig })
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

type inputFiles struct {
	dir, wallets, tokens, spenders, output string
}

func basicInputs(t *testing.T, spenders string) inputFiles {
	t.Helper()
	dir := t.TempDir()
	return inputFiles{
		dir:      dir,
		wallets:  writeFile(t, dir, "wallets.txt", "# treasury\n"+wallet.Hex()+"\n"),
		tokens:   writeFile(t, dir, "tokens.txt", usdt.Hex()+",1\n"),
		spenders: writeFile(t, dir, "spenders.txt", spenders),
		output:   filepath.Join(dir, "out.csv"),
	}
}

func (f inputFiles) args(extra ...string) []string {
	return append([]string{
		"--env-file", filepath.Join(f.dir, "missing.env"),
		"--rpc", "https://eth.example",
		"--wallets", f.wallets,
		"--tokens", f.tokens,
		"--spenders", f.spenders,
		"--output", f.output,
	}, extra...)
}

func execute(t *testing.T, args []string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCommand(&stdout, &stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRootCommand_BasicRun(t *testing.T) {
	isolateEnv(t)

	var (
		mu       sync.Mutex
		received []map[string]any
	)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var payload map[string]any
		_ = json.Unmarshal(body, &payload)
		mu.Lock()
		received = append(received, payload)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer hook.Close()
	t.Setenv("ALERT_WEBHOOK_URL", hook.URL)

	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	client.EXPECT().Symbol(gomock.Any(), usdt).Return("USDT", nil)
	client.EXPECT().Decimals(gomock.Any(), usdt).Return(uint8(6), nil)
	client.EXPECT().Allowance(gomock.Any(), usdt, wallet, spender).Return(exposure.MaxUint256, nil)
	client.EXPECT().BalanceOf(gomock.Any(), usdt, wallet).Return(big.NewInt(1_500_000_000), nil)
	useClient(t, client)

	files := basicInputs(t, spender.Hex()+"\n")
	stdout, _, err := execute(t, files.args())
	require.NoError(t, err)

	assert.Contains(t, stdout, "进度: [1/1] 100% 完成")
	assert.Contains(t, stdout, "USDT")
	assert.Contains(t, stdout, "∞")
	assert.Contains(t, stdout, "$1500.00")
	assert.Contains(t, stdout, "共 1 条授权记录")
	assert.Contains(t, stdout, "无限授权: 1")

	raw, err := os.ReadFile(files.output)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t,
		wallet.Hex()+","+usdt.Hex()+",USDT,"+spender.Hex()+",∞,1500.0,1500.0,1,1500,true",
		lines[1])

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, "INFINITE_APPROVAL", received[0]["type"])
}

func TestRootCommand_LogsDegradedTokens(t *testing.T) {
	isolateEnv(t)

	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	client.EXPECT().Symbol(gomock.Any(), usdt).Return("", errors.New("execution reverted")).AnyTimes()
	client.EXPECT().Decimals(gomock.Any(), usdt).Return(uint8(0), errors.New("execution reverted")).AnyTimes()
	client.EXPECT().Allowance(gomock.Any(), usdt, wallet, spender).Return(big.NewInt(10), nil)
	client.EXPECT().BalanceOf(gomock.Any(), usdt, wallet).Return(big.NewInt(4), nil)
	useClient(t, client)

	files := basicInputs(t, spender.Hex()+"\n")
	_, stderr, err := execute(t, files.args())
	require.NoError(t, err)

	assert.Contains(t, stderr, "audit results need attention")
	assert.Contains(t, stderr, "degraded_tokens=1")
	assert.Contains(t, stderr, "duplicate_records=0")
}

func TestRootCommand_FlagsOverrideEnvironment(t *testing.T) {
	isolateEnv(t)
	t.Setenv("BATCH_SIZE", "5")
	useClient(t, mocks.NewMockClient(gomock.NewController(t)))

	files := basicInputs(t, spender.Hex()+"\n")
	_, _, err := execute(t, files.args("--concurrency", "0"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BATCH_SIZE must be positive")
}

func TestRootCommand_MissingRPCURL(t *testing.T) {
	isolateEnv(t)
	useClient(t, mocks.NewMockClient(gomock.NewController(t)))

	dir := t.TempDir()
	_, _, err := execute(t, []string{"--env-file", filepath.Join(dir, "missing.env")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RPC_URL is required")
}

func TestRootCommand_EnvFileSuppliesRPCURL(t *testing.T) {
	isolateEnv(t)
	useClient(t, mocks.NewMockClient(gomock.NewController(t)))

	files := basicInputs(t, "")
	envFile := writeFile(t, files.dir, "test.env", "RPC_URL=https://from-dotenv.example\n")
	t.Cleanup(func() { os.Unsetenv("RPC_URL") })

	_, _, err := execute(t, []string{
		"--env-file", envFile,
		"--wallets", files.wallets,
		"--tokens", files.tokens,
		"--spenders", files.spenders,
		"--output", files.output,
	})
	// Config loads; the run then stops on the empty spender list.
	require.Error(t, err)
	assert.ErrorIs(t, err, input.ErrNoSpenders)
}

func TestRootCommand_NoSpendersInBasicMode(t *testing.T) {
	isolateEnv(t)
	useClient(t, mocks.NewMockClient(gomock.NewController(t)))

	files := basicInputs(t, "# nothing yet\n")
	_, _, err := execute(t, files.args())
	require.Error(t, err)
	assert.ErrorIs(t, err, input.ErrNoSpenders)

	_, statErr := os.Stat(files.output)
	assert.True(t, os.IsNotExist(statErr), "no export on fatal errors")
}

func TestRootCommand_RejectsArguments(t *testing.T) {
	isolateEnv(t)
	_, _, err := execute(t, []string{"unexpected"})
	require.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, config.LogConfig{Level: "debug", Format: "json"})
	logger.Debug("hello", "k", "v")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "DEBUG", entry["level"])

	buf.Reset()
	logger = newLogger(&buf, config.LogConfig{Level: "warn", Format: "text"})
	logger.Info("dropped")
	logger.Warn("kept")
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "msg=kept")
}
