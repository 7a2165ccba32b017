package input

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoeanSteinbock/address-approval-checker/internal/domain/model"
)

const (
	walletA = "0x1111111111111111111111111111111111111111"
	walletB = "0x2222222222222222222222222222222222222222"
	usdt    = "0xdAC17F958D2ee523a2206206994597C13D831ec7"
	weth    = "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
	router  = "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestParseAddresses(t *testing.T) {
	src := strings.Join([]string{
		"# wallets",
		"",
		"  " + walletA + "  ",
		strings.ToLower(walletB),
		walletA, // duplicate
	}, "\n")

	addrs, err := ParseAddresses(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, []common.Address{common.HexToAddress(walletA), common.HexToAddress(walletB)}, addrs)
}

func TestParseAddresses_Invalid(t *testing.T) {
	_, err := ParseAddresses(strings.NewReader(walletA + "\nnot-an-address\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
	assert.Contains(t, err.Error(), `invalid address "not-an-address"`)
}

func TestParseTokens(t *testing.T) {
	src := usdt + "\n" + weth + ", 3200.5\n" + usdt + ",1\n"

	tokens, err := ParseTokens(strings.NewReader(src))
	require.NoError(t, err)
	require.Len(t, tokens, 2)

	assert.Equal(t, common.HexToAddress(usdt), tokens[0].Address)
	assert.Nil(t, tokens[0].Price, "first occurrence wins")
	assert.Equal(t, common.HexToAddress(weth), tokens[1].Address)
	require.NotNil(t, tokens[1].Price)
	assert.Equal(t, 3200.5, *tokens[1].Price)
}

func TestParseTokens_BadPrice(t *testing.T) {
	for _, line := range []string{weth + ",abc", weth + ",-1", weth + ",NaN", weth + ",Inf", weth + ",-inf", weth + ",1e309"} {
		_, err := ParseTokens(strings.NewReader(line))
		require.Error(t, err, line)
		assert.Contains(t, err.Error(), "line 1: invalid price")
	}
}

func TestParseTokens_EmptyPriceMeansUnknown(t *testing.T) {
	tokens, err := ParseTokens(strings.NewReader(weth + ","))
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Nil(t, tokens[0].Price)
}

func TestParseYAML(t *testing.T) {
	raw := `
wallets:
  - "` + walletA + `"
  - "` + walletA + `"
tokens:
  - address: "` + usdt + `"
  - address: "` + weth + `"
    price: 3000
spenders:
  - "` + router + `"
`
	targets, err := ParseYAML([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, []common.Address{common.HexToAddress(walletA)}, targets.Wallets)
	require.Len(t, targets.Tokens, 2)
	assert.Nil(t, targets.Tokens[0].Price)
	require.NotNil(t, targets.Tokens[1].Price)
	assert.Equal(t, 3000.0, *targets.Tokens[1].Price)
	assert.Equal(t, []common.Address{common.HexToAddress(router)}, targets.Spenders)
}

func TestParseYAML_Errors(t *testing.T) {
	_, err := ParseYAML([]byte("wallets: [\"0x12\"]"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wallets[0]")

	_, err = ParseYAML([]byte("tokens:\n  - address: \"" + weth + "\"\n    price: -2\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tokens[0]: price must not be negative")

	for _, price := range []string{".nan", ".inf", "-.inf"} {
		_, err = ParseYAML([]byte("tokens:\n  - address: \"" + weth + "\"\n    price: " + price + "\n"))
		require.Error(t, err, price)
		assert.Contains(t, err.Error(), "tokens[0]: price must be a finite number")
	}

	_, err = ParseYAML([]byte("wallets: {"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse targets")
}

func TestLoad_TextFiles(t *testing.T) {
	dir := t.TempDir()
	files := Files{
		Wallets:  writeFile(t, dir, "wallets.txt", walletA+"\n"+walletB+"\n"),
		Tokens:   writeFile(t, dir, "tokens.txt", usdt+"\n"),
		Spenders: writeFile(t, dir, "spenders.txt", router+"\n"),
	}

	targets, err := Load(files, model.ModeBasic)
	require.NoError(t, err)
	assert.Len(t, targets.Wallets, 2)
	assert.Len(t, targets.Tokens, 1)
	assert.Len(t, targets.Spenders, 1)
}

func TestLoad_AdvancedModeSkipsSpenders(t *testing.T) {
	dir := t.TempDir()
	files := Files{
		Wallets:  writeFile(t, dir, "wallets.txt", walletA+"\n"),
		Tokens:   writeFile(t, dir, "tokens.txt", usdt+"\n"),
		Spenders: filepath.Join(dir, "missing.txt"),
	}

	targets, err := Load(files, model.ModeAdvanced)
	require.NoError(t, err)
	assert.Empty(t, targets.Spenders)

	_, err = Load(files, model.ModeBasic)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.txt")
}

func TestLoad_Validation(t *testing.T) {
	dir := t.TempDir()
	empty := writeFile(t, dir, "empty.txt", "# nothing\n")
	wallets := writeFile(t, dir, "wallets.txt", walletA+"\n")
	tokens := writeFile(t, dir, "tokens.txt", usdt+"\n")

	_, err := Load(Files{Wallets: empty, Tokens: tokens, Spenders: tokens}, model.ModeBasic)
	assert.ErrorIs(t, err, ErrNoWallets)

	_, err = Load(Files{Wallets: wallets, Tokens: empty, Spenders: tokens}, model.ModeBasic)
	assert.ErrorIs(t, err, ErrNoTokens)

	_, err = Load(Files{Wallets: wallets, Tokens: tokens, Spenders: empty}, model.ModeBasic)
	assert.ErrorIs(t, err, ErrNoSpenders)
}

func TestLoad_TargetsFileWins(t *testing.T) {
	dir := t.TempDir()
	targetsPath := writeFile(t, dir, "targets.yaml", "wallets: [\""+walletB+"\"]\ntokens:\n  - address: \""+weth+"\"\n")

	targets, err := Load(Files{
		Wallets: filepath.Join(dir, "ignored.txt"),
		Tokens:  filepath.Join(dir, "ignored.txt"),
		Targets: targetsPath,
	}, model.ModeAdvanced)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{common.HexToAddress(walletB)}, targets.Wallets)
	assert.Equal(t, common.HexToAddress(weth), targets.Tokens[0].Address)
}
