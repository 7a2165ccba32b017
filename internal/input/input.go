// Package input loads the wallet, token and spender lists for an audit run.
package input

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/JoeanSteinbock/address-approval-checker/internal/domain/model"
)

var (
	ErrNoWallets  = errors.New("no wallet addresses to check")
	ErrNoTokens   = errors.New("no token addresses to check")
	ErrNoSpenders = errors.New("no spender addresses to check (basic mode needs a spender list)")
)

// Targets is the full input of one run.
type Targets struct {
	Wallets  []common.Address
	Tokens   []model.TokenInput
	Spenders []common.Address
}

// Validate checks the targets are sufficient for mode.
func (t Targets) Validate(mode model.Mode) error {
	if len(t.Wallets) == 0 {
		return ErrNoWallets
	}
	if len(t.Tokens) == 0 {
		return ErrNoTokens
	}
	if mode == model.ModeBasic && len(t.Spenders) == 0 {
		return ErrNoSpenders
	}
	return nil
}

// Files names the list files a run reads. TargetsFile, when set, replaces the
// three text lists.
type Files struct {
	Wallets  string
	Tokens   string
	Spenders string
	Targets  string
}

// Load reads targets from disk. In advanced mode the spender list is optional.
func Load(files Files, mode model.Mode) (Targets, error) {
	if files.Targets != "" {
		t, err := LoadYAML(files.Targets)
		if err != nil {
			return Targets{}, err
		}
		return t, t.Validate(mode)
	}

	var t Targets
	var err error
	if t.Wallets, err = readAddressFile(files.Wallets); err != nil {
		return Targets{}, err
	}
	if t.Tokens, err = readTokenFile(files.Tokens); err != nil {
		return Targets{}, err
	}
	if mode == model.ModeBasic {
		if t.Spenders, err = readAddressFile(files.Spenders); err != nil {
			return Targets{}, err
		}
	}
	return t, t.Validate(mode)
}

func readAddressFile(path string) ([]common.Address, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	addrs, err := ParseAddresses(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return addrs, nil
}

func readTokenFile(path string) ([]model.TokenInput, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	tokens, err := ParseTokens(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tokens, nil
}

// ParseAddresses reads one address per line. Blank lines and lines starting
// with '#' are skipped; duplicates keep their first position.
func ParseAddresses(r io.Reader) ([]common.Address, error) {
	var out []common.Address
	seen := make(map[common.Address]struct{})
	err := scanLines(r, func(lineNo int, line string) error {
		addr, err := parseAddress(line)
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		if _, dup := seen[addr]; dup {
			return nil
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
		return nil
	})
	return out, err
}

// ParseTokens reads "address" or "address,price" lines.
func ParseTokens(r io.Reader) ([]model.TokenInput, error) {
	var out []model.TokenInput
	seen := make(map[common.Address]struct{})
	err := scanLines(r, func(lineNo int, line string) error {
		rawAddr, rawPrice, hasPrice := strings.Cut(line, ",")
		addr, err := parseAddress(rawAddr)
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		in := model.TokenInput{Address: addr}
		if hasPrice && strings.TrimSpace(rawPrice) != "" {
			p, err := parsePrice(rawPrice)
			if err != nil {
				return fmt.Errorf("line %d: %w", lineNo, err)
			}
			in.Price = &p
		}
		if _, dup := seen[addr]; dup {
			return nil
		}
		seen[addr] = struct{}{}
		out = append(out, in)
		return nil
	})
	return out, err
}

func scanLines(r io.Reader, fn func(lineNo int, line string) error) error {
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := fn(lineNo, line); err != nil {
			return err
		}
	}
	return sc.Err()
}

func parseAddress(raw string) (common.Address, error) {
	s := strings.TrimSpace(raw)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

func parsePrice(raw string) (float64, error) {
	p, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid price %q: %w", strings.TrimSpace(raw), err)
	}
	if err := checkPrice(p); err != nil {
		return 0, fmt.Errorf("invalid price %q: %w", strings.TrimSpace(raw), err)
	}
	return p, nil
}

// checkPrice accepts finite, non-negative prices.
func checkPrice(p float64) error {
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return errors.New("must be a finite number")
	}
	if p < 0 {
		return errors.New("must not be negative")
	}
	return nil
}

type targetsFile struct {
	Wallets []string `yaml:"wallets"`
	Tokens  []struct {
		Address string   `yaml:"address"`
		Price   *float64 `yaml:"price"`
	} `yaml:"tokens"`
	Spenders []string `yaml:"spenders"`
}

// LoadYAML reads a targets file.
func LoadYAML(path string) (Targets, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Targets{}, fmt.Errorf("read %s: %w", path, err)
	}
	t, err := ParseYAML(raw)
	if err != nil {
		return Targets{}, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

func ParseYAML(raw []byte) (Targets, error) {
	var f targetsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return Targets{}, fmt.Errorf("parse targets: %w", err)
	}

	var t Targets
	var err error
	if t.Wallets, err = dedupAddresses("wallets", f.Wallets); err != nil {
		return Targets{}, err
	}
	if t.Spenders, err = dedupAddresses("spenders", f.Spenders); err != nil {
		return Targets{}, err
	}

	seen := make(map[common.Address]struct{})
	for i, tok := range f.Tokens {
		addr, err := parseAddress(tok.Address)
		if err != nil {
			return Targets{}, fmt.Errorf("tokens[%d]: %w", i, err)
		}
		if tok.Price != nil {
			if err := checkPrice(*tok.Price); err != nil {
				return Targets{}, fmt.Errorf("tokens[%d]: price %w", i, err)
			}
		}
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		t.Tokens = append(t.Tokens, model.TokenInput{Address: addr, Price: tok.Price})
	}
	return t, nil
}

func dedupAddresses(field string, raw []string) ([]common.Address, error) {
	var out []common.Address
	seen := make(map[common.Address]struct{})
	for i, s := range raw {
		addr, err := parseAddress(s)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", field, i, err)
		}
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	return out, nil
}
