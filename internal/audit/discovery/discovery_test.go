package discovery

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/JoeanSteinbock/address-approval-checker/internal/chain"
	"github.com/JoeanSteinbock/address-approval-checker/internal/chain/mocks"
	"github.com/JoeanSteinbock/address-approval-checker/internal/domain/model"
)

var (
	wallet   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	token    = common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7")
	spenderA = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	spenderB = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSpenders_DeduplicatesFirstSeen(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)

	client.EXPECT().ApprovalEvents(gomock.Any(), token, wallet, uint64(100), uint64(200)).Return([]model.ApprovalEvent{
		{Owner: wallet, Spender: spenderB, BlockNumber: 110},
		{Owner: wallet, Spender: spenderA, BlockNumber: 120},
		{Owner: wallet, Spender: spenderB, BlockNumber: 150},
	}, nil)

	got := New(client, testLogger()).Spenders(context.Background(), wallet, token, Window{From: 100, To: 200})
	assert.Equal(t, []common.Address{spenderB, spenderA}, got)
}

func TestSpenders_SameSpenderTwiceReturnedOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)

	client.EXPECT().ApprovalEvents(gomock.Any(), token, wallet, uint64(0), uint64(10)).Return([]model.ApprovalEvent{
		{Spender: spenderA, BlockNumber: 1},
		{Spender: spenderA, BlockNumber: 2},
	}, nil)

	got := New(client, testLogger()).Spenders(context.Background(), wallet, token, Window{From: 0, To: 10})
	assert.Equal(t, []common.Address{spenderA}, got)
}

func TestSpenders_NoEvents(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)

	client.EXPECT().ApprovalEvents(gomock.Any(), token, wallet, uint64(5), uint64(6)).Return(nil, nil)

	got := New(client, testLogger()).Spenders(context.Background(), wallet, token, Window{From: 5, To: 6})
	require.NotNil(t, got)
	assert.Empty(t, got)
}

func TestSpenders_QueryFailureDegradesToEmpty(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)

	client.EXPECT().ApprovalEvents(gomock.Any(), token, wallet, gomock.Any(), gomock.Any()).
		Return(nil, chain.NewQueryError(token, 0, 10, errors.New("query returned more than 10000 results")))

	got := New(client, testLogger()).Spenders(context.Background(), wallet, token, Window{From: 0, To: 10})
	assert.Empty(t, got)
}

func TestSpenders_EmptyWindowSkipsQuery(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)

	got := New(client, testLogger()).Spenders(context.Background(), wallet, token, Window{From: 10, To: 9})
	assert.Empty(t, got)
}

func TestResolveWindow(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)

	w, err := ResolveWindow(context.Background(), client, 100, 200)
	require.NoError(t, err)
	assert.Equal(t, Window{From: 100, To: 200}, w)

	client.EXPECT().BlockNumber(gomock.Any()).Return(uint64(19_000_000), nil)
	w, err = ResolveWindow(context.Background(), client, 18_000_000, 0)
	require.NoError(t, err)
	assert.Equal(t, Window{From: 18_000_000, To: 19_000_000}, w)
	assert.Equal(t, "[18000000,19000000]", w.String())
}

func TestResolveWindow_Errors(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)

	_, err := ResolveWindow(context.Background(), client, 10, 5)
	require.Error(t, err)

	client.EXPECT().BlockNumber(gomock.Any()).Return(uint64(0), errors.New("connection refused"))
	_, err = ResolveWindow(context.Background(), client, 0, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolve discovery window")
}

func TestResolveWindow_HeadBeforeFromIsEmpty(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)

	client.EXPECT().BlockNumber(gomock.Any()).Return(uint64(50), nil)
	w, err := ResolveWindow(context.Background(), client, 100, 0)
	require.NoError(t, err)
	assert.True(t, w.Empty())
}
