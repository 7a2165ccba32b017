package report

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/JoeanSteinbock/address-approval-checker/internal/domain/model"
)

const (
	colorReset = "\033[0m"
	colorBold  = "\033[1m"
	colorRed   = "\033[31m"
)

type RenderOptions struct {
	// Color highlights infinite approvals with ANSI escapes.
	Color bool
}

// Render prints the displayed records as a table followed by the summary of
// the complete set. total is the size of the complete set.
func Render(w io.Writer, shown []model.ApprovalRecord, total int, summary Summary, opts RenderOptions) error {
	if len(shown) == 0 {
		if _, err := fmt.Fprintln(w, "未发现授权记录"); err != nil {
			return err
		}
		_, err := fmt.Fprintln(w, SummaryLine(summary))
		return err
	}

	var buf bytes.Buffer
	tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "钱包地址\t代币\t授权地址\t授权额度\t余额\t风险数量\t风险价值(USD)")
	for _, r := range shown {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Wallet.Hex(),
			model.CleanSymbol(r.TokenSymbol),
			r.Spender.Hex(),
			r.Allowance,
			r.Balance,
			r.ExposedAmount,
			formatUSD(r.ExposedValueUSD),
		)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("render table: %w", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	for i, line := range lines {
		switch {
		case !opts.Color:
		case i == 0:
			line = colorBold + line + colorReset
		case shown[i-1].IsInfiniteApproval:
			line = colorRed + line + colorReset
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}

	if len(shown) < total {
		if _, err := fmt.Fprintf(w, "\n仅显示 %d / %d 条重要记录 (按风险价值排序及无限授权)，完整结果请查看导出文件\n", len(shown), total); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "\n"+SummaryLine(summary))
	return err
}

// SummaryLine is the one-line aggregate printed after the table.
func SummaryLine(s Summary) string {
	return fmt.Sprintf("共 %d 条授权记录 | 钱包: %d | 代币: %d | 授权地址: %d | 无限授权: %d | 已知风险总价值: $%.2f (%d 条价格未知)",
		s.Records, s.Wallets, s.Tokens, s.Spenders, s.InfiniteApprovals, s.TotalValueUSD, s.UnknownValueCount())
}

func formatUSD(v *float64) string {
	if v == nil {
		return model.UnknownSymbol
	}
	return fmt.Sprintf("$%.2f", *v)
}
