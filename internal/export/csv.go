// Package export writes the complete approval record set to CSV.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/JoeanSteinbock/address-approval-checker/internal/domain/model"
)

// Unknown marks a missing price or USD value.
const Unknown = "unknown"

// Header is the fixed column order of the export.
var Header = []string{
	"WalletAddress",
	"TokenAddress",
	"TokenSymbol",
	"SpenderAddress",
	"Allowance",
	"Balance",
	"ExposedAmount",
	"Price",
	"ExposedValueUSD",
	"IsInfiniteApproval",
}

// WriteCSV writes the header and one row per record in the given order.
func WriteCSV(w io.Writer, records []model.ApprovalRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for i, r := range records {
		if err := cw.Write(Row(r)); err != nil {
			return fmt.Errorf("write csv row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// Row is the CSV representation of a single record.
func Row(r model.ApprovalRecord) []string {
	return []string{
		r.Wallet.Hex(),
		r.Token.Hex(),
		r.TokenSymbol,
		r.Spender.Hex(),
		r.Allowance,
		r.Balance,
		r.ExposedAmount,
		formatFloat(r.Price),
		formatFloat(r.ExposedValueUSD),
		strconv.FormatBool(r.IsInfiniteApproval),
	}
}

// WriteFile writes records to path through a temporary file in the same
// directory, so a failed export never leaves a truncated file behind.
func WriteFile(path string, records []model.ApprovalRecord) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := WriteCSV(tmp, records); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close export file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename export file: %w", err)
	}
	return nil
}

func formatFloat(v *float64) string {
	if v == nil {
		return Unknown
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
