package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tripmesh/trustd/internal/metrics"
)

// tokenProgramID is the SPL token program all standard token accounts live
// under; holdings are queried within this scope only.
const tokenProgramID = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"

// maxSignatures caps the transaction history query. The resulting count is
// a lower bound on true activity, and wallet age derived from the batch is
// a lower bound on true age: anything older than the cap is invisible.
const maxSignatures = 1000

// Client queries a Solana-compatible ledger node over JSON-RPC.
type Client struct {
	rpcURL  string
	client  *http.Client
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewClient(rpcURL string, m *metrics.Metrics, logger *slog.Logger) *Client {
	return &Client{
		rpcURL:  rpcURL,
		client:  &http.Client{Timeout: 15 * time.Second},
		metrics: m,
		logger:  logger,
	}
}

// Enrichment is the wallet signal delta from one collection pass. Nil
// fields mean "no new information": that sub-query failed or could not
// determine a value, so the caller keeps whatever it already had.
type Enrichment struct {
	AgeDays   *int
	TxCount   *int
	HasTokens *bool
}

// Enrich queries transaction history and token holdings for address. The
// two queries are independent: a failure in one degrades only its own
// fields and never aborts the other. Failures are logged and absorbed
// here, which is why Enrich itself cannot fail.
func (c *Client) Enrich(ctx context.Context, address string) Enrichment {
	var enr Enrichment

	sigs, err := c.signaturesForAddress(ctx, address)
	if err != nil {
		c.logger.Warn("wallet history query failed", "address", address, "error", err)
		c.metrics.RecordCollectorFailure("wallet_history")
	} else {
		count := len(sigs)
		if count > maxSignatures {
			count = maxSignatures
		}
		enr.TxCount = &count
		if oldest, ok := oldestBlockTime(sigs); ok {
			days := int(time.Since(oldest) / (24 * time.Hour))
			if days < 0 {
				days = 0
			}
			enr.AgeDays = &days
		}
	}

	holdings, err := c.tokenAccountsByOwner(ctx, address)
	if err != nil {
		c.logger.Warn("wallet holdings query failed", "address", address, "error", err)
		c.metrics.RecordCollectorFailure("wallet_holdings")
	} else {
		has := hasPositiveBalance(holdings)
		enr.HasTokens = &has
	}

	return enr
}

type signatureInfo struct {
	Signature string `json:"signature"`
	Slot      uint64 `json:"slot"`
	BlockTime *int64 `json:"blockTime"`
}

func (c *Client) signaturesForAddress(ctx context.Context, address string) ([]signatureInfo, error) {
	var sigs []signatureInfo
	params := []any{address, map[string]any{"limit": maxSignatures}}
	if err := c.call(ctx, "getSignaturesForAddress", params, &sigs); err != nil {
		return nil, err
	}
	return sigs, nil
}

type tokenAccount struct {
	Account struct {
		Data struct {
			Parsed struct {
				Info struct {
					TokenAmount struct {
						UIAmount *float64 `json:"uiAmount"`
					} `json:"tokenAmount"`
				} `json:"info"`
			} `json:"parsed"`
		} `json:"data"`
	} `json:"account"`
}

func (c *Client) tokenAccountsByOwner(ctx context.Context, address string) ([]tokenAccount, error) {
	var result struct {
		Value []tokenAccount `json:"value"`
	}
	params := []any{
		address,
		map[string]any{"programId": tokenProgramID},
		map[string]any{"encoding": "jsonParsed"},
	}
	if err := c.call(ctx, "getTokenAccountsByOwner", params, &result); err != nil {
		return nil, err
	}
	return result.Value, nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *Client) call(ctx context.Context, method string, params []any, result any) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("marshal rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("rpc call: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rpc status %d: %s", resp.StatusCode, string(respBody))
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("parse rpc envelope: %w", err)
	}
	if envelope.Error != nil {
		return fmt.Errorf("rpc error %d: %s", envelope.Error.Code, envelope.Error.Message)
	}
	if err := json.Unmarshal(envelope.Result, result); err != nil {
		return fmt.Errorf("parse %s result: %w", method, err)
	}
	return nil
}

// oldestBlockTime scans for the earliest confirmed timestamp in the batch.
// Records without one are skipped; ok is false when none carry a timestamp.
func oldestBlockTime(sigs []signatureInfo) (time.Time, bool) {
	var oldest int64
	for _, s := range sigs {
		if s.BlockTime == nil {
			continue
		}
		if oldest == 0 || *s.BlockTime < oldest {
			oldest = *s.BlockTime
		}
	}
	if oldest == 0 {
		return time.Time{}, false
	}
	return time.Unix(oldest, 0), true
}

func hasPositiveBalance(accounts []tokenAccount) bool {
	for _, a := range accounts {
		if amt := a.Account.Data.Parsed.Info.TokenAmount.UIAmount; amt != nil && *amt > 0 {
			return true
		}
	}
	return false
}
