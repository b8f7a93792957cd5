package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"loop-dash/internal/alerts"
	"loop-dash/internal/dashboard"
	"loop-dash/internal/state"
	"loop-dash/internal/vault"

	"go.uber.org/zap"
)

const (
	operatorOffsetKey = "telegram:operator:last_update_id"
	defaultTopVaults  = 3
	maxTopVaults      = 10
)

// cacheClock is implemented by stores that track write times.
type cacheClock interface {
	UpdatedAt(ctx context.Context, key string) (time.Time, bool, error)
}

type operatorMeta struct {
	UpdateID int64
	UserID   int64
	Username string
	ChatID   int64
	Raw      string
}

type operatorAuditEvent struct {
	UpdateID int64     `json:"update_id"`
	Time     time.Time `json:"time"`
	Action   string    `json:"action"`
	Command  string    `json:"command"`
	UserID   int64     `json:"user_id"`
	Username string    `json:"username,omitempty"`
	ChatID   int64     `json:"chat_id"`
}

func (a *App) startOperator(ctx context.Context) {
	if a.cfg == nil || a.bot == nil || a.log == nil {
		return
	}
	if !a.cfg.Telegram.OperatorEnabled {
		return
	}
	chatID, err := strconv.ParseInt(strings.TrimSpace(a.cfg.Telegram.ChatID), 10, 64)
	if err != nil {
		a.log.Warn("telegram operator disabled: invalid chat_id", zap.Error(err))
		return
	}
	pollInterval := a.cfg.Telegram.OperatorPollInterval
	if pollInterval <= 0 {
		pollInterval = 30 * time.Second
	}
	allowedUsers := make(map[int64]struct{}, len(a.cfg.Telegram.OperatorAllowedUserIDs))
	for _, id := range a.cfg.Telegram.OperatorAllowedUserIDs {
		allowedUsers[id] = struct{}{}
	}
	a.log.Info("telegram operator started", zap.Int("allowed_users", len(allowedUsers)))
	go a.operatorLoop(ctx, chatID, allowedUsers, pollInterval)
}

func (a *App) operatorLoop(ctx context.Context, chatID int64, allowedUsers map[int64]struct{}, pollInterval time.Duration) {
	offset := a.loadOperatorOffset(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		updates, err := a.bot.GetUpdates(ctx, offset, pollInterval)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			a.logOperatorError(err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(pollInterval):
			}
			continue
		}
		if a.operatorWarned {
			a.log.Info("telegram operator recovered")
			a.operatorWarned = false
		}
		for _, upd := range updates {
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
				a.saveOperatorOffset(ctx, offset)
			}
			a.handleOperatorUpdate(ctx, upd, chatID, allowedUsers)
		}
	}
}

func (a *App) handleOperatorUpdate(ctx context.Context, upd alerts.Update, chatID int64, allowedUsers map[int64]struct{}) {
	if upd.Message == nil {
		return
	}
	msg := upd.Message
	if msg.Chat == nil || msg.From == nil {
		return
	}
	if msg.Chat.ID != chatID {
		return
	}
	if len(allowedUsers) > 0 {
		if _, ok := allowedUsers[msg.From.ID]; !ok {
			return
		}
	}
	cmd, args, ok := parseOperatorCommand(msg.Text)
	if !ok {
		return
	}
	meta := operatorMeta{
		UpdateID: upd.UpdateID,
		UserID:   msg.From.ID,
		Username: msg.From.Username,
		ChatID:   msg.Chat.ID,
		Raw:      msg.Text,
	}
	resp, err := a.handleOperatorCommand(ctx, cmd, args, meta)
	if err != nil {
		resp = fmt.Sprintf("command failed: %v", err)
	}
	if resp == "" {
		return
	}
	if err := a.bot.Send(ctx, resp); err != nil {
		a.log.Warn("operator response failed", zap.Error(err))
	}
}

// parseOperatorCommand splits "/cmd@bot a b" into "cmd" and its args.
func parseOperatorCommand(text string) (string, []string, bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "/") {
		return "", nil, false
	}
	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return "", nil, false
	}
	cmd := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	if at := strings.IndexByte(cmd, '@'); at >= 0 {
		cmd = cmd[:at]
	}
	if cmd == "" {
		return "", nil, false
	}
	return cmd, fields[1:], true
}

func (a *App) handleOperatorCommand(ctx context.Context, cmd string, args []string, meta operatorMeta) (string, error) {
	switch cmd {
	case "status":
		return a.operatorStatus(ctx), nil
	case "refresh":
		if a.markets == nil {
			return "", fmt.Errorf("market source unavailable")
		}
		a.markets.Refresh()
		a.auditOperatorEvent(ctx, operatorAuditEvent{
			UpdateID: meta.UpdateID,
			Time:     time.Now().UTC(),
			Action:   "refresh",
			Command:  meta.Raw,
			UserID:   meta.UserID,
			Username: meta.Username,
			ChatID:   meta.ChatID,
		})
		return "market refresh scheduled", nil
	case "top":
		return a.operatorTop(args)
	case "quote":
		return a.operatorQuote(args)
	default:
		return operatorHelpText(), nil
	}
}

func (a *App) operatorStatus(ctx context.Context) string {
	if a.markets == nil {
		return "status unavailable"
	}
	snap := a.markets.Snapshot()
	source := "network"
	if snap.FromCache {
		source = "cache"
	}
	updated := "never"
	if !snap.UpdatedAt.IsZero() {
		updated = snap.UpdatedAt.UTC().Format(time.RFC3339)
	}
	lines := []string{
		fmt.Sprintf("loading: %t", snap.Loading),
		fmt.Sprintf("markets: %d", len(snap.Markets)),
		fmt.Sprintf("eth_vaults: %d", len(vault.Select(snap.Markets))),
		fmt.Sprintf("updated_at: %s", updated),
		fmt.Sprintf("source: %s", source),
	}
	if clock, ok := a.store.(cacheClock); ok {
		at, found, err := clock.UpdatedAt(ctx, state.MarketsSnapshotKey)
		switch {
		case err != nil:
			lines = append(lines, fmt.Sprintf("cache_saved_at: error: %v", err))
		case found:
			lines = append(lines, fmt.Sprintf("cache_saved_at: %s", at.UTC().Format(time.RFC3339)))
		default:
			lines = append(lines, "cache_saved_at: never")
		}
	}
	if snap.Err != nil {
		lines = append(lines, fmt.Sprintf("error: %v", snap.Err))
	}
	return strings.Join(lines, "\n")
}

func (a *App) operatorTop(args []string) (string, error) {
	n := defaultTopVaults
	if len(args) > 0 {
		parsed, err := strconv.Atoi(args[0])
		if err != nil || parsed <= 0 {
			return "", fmt.Errorf("top expects a positive count, got %q", args[0])
		}
		n = min(parsed, maxTopVaults)
	}
	if a.markets == nil {
		return "status unavailable", nil
	}
	options := vault.Options(a.markets.Snapshot().Markets, "")
	if len(options) == 0 {
		return "no vaults available", nil
	}
	if len(options) > n {
		options = options[:n]
	}
	lines := make([]string, 0, len(options))
	for i, opt := range options {
		lines = append(lines, fmt.Sprintf("%d. %s\n   %s", i+1, opt.Label(), opt.ID))
	}
	return strings.Join(lines, "\n"), nil
}

// operatorQuote handles "/quote <vault> <collateral> <borrow> [strategy] [leverage]".
func (a *App) operatorQuote(args []string) (string, error) {
	if len(args) < 3 {
		return "", fmt.Errorf("usage: /quote <vault> <collateral> <borrow> [strategy] [leverage]")
	}
	if a.markets == nil {
		return "status unavailable", nil
	}
	in := dashboard.DefaultInput()
	in.MarketID = dashboard.CanonicalMarketID(args[0])
	in.Collateral = args[1]
	in.Borrow = args[2]
	if len(args) > 3 {
		in.StrategyID = args[3]
	}
	if len(args) > 4 {
		lev, err := strconv.ParseFloat(args[4], 64)
		if err != nil {
			return "", fmt.Errorf("leverage: %w", err)
		}
		in.Leverage = lev
	}
	view := dashboard.Build(a.markets.Snapshot(), in)
	switch view.Status {
	case dashboard.StatusLoading:
		return "markets still loading", nil
	case dashboard.StatusError:
		return "markets unavailable: " + view.Error, nil
	}
	if view.Quote.MarketID == "" {
		return "", fmt.Errorf("unknown vault %s", args[0])
	}
	if view.Strategy == nil {
		return "", fmt.Errorf("unknown strategy %s", in.StrategyID)
	}
	if a.metrics != nil {
		a.metrics.Quotes.Inc()
	}
	lines := []string{
		fmt.Sprintf("strategy: %s (%s)", view.Strategy.Name, view.LeverageLabel),
		fmt.Sprintf("max_borrow: %s  ltv: %s", view.MaxBorrow, view.LTV),
		fmt.Sprintf("health_factor: %s", view.HealthFactor),
		fmt.Sprintf("net_apy: %s", view.Components.NetAPY),
	}
	for _, r := range view.Returns {
		lines = append(lines, fmt.Sprintf("%s: %s %s", strings.ToLower(r.Period), r.Amount, r.Rebate))
	}
	if view.OverBorrowed {
		lines = append(lines, "warning: exceeds max borrow")
	}
	return strings.Join(lines, "\n"), nil
}

func operatorHelpText() string {
	return strings.Join([]string{
		"commands:",
		"/status - market feed status",
		"/refresh - poll markets now",
		"/top [n] - largest ETH vaults by liquidity",
		"/quote <vault> <collateral> <borrow> [strategy] [leverage] - project returns",
	}, "\n")
}

func (a *App) logOperatorError(err error) {
	if a.log == nil {
		return
	}
	if a.operatorWarned {
		return
	}
	a.operatorWarned = true
	a.log.Warn("telegram operator failed", zap.Error(err))
}

func (a *App) loadOperatorOffset(ctx context.Context) int64 {
	if a.store == nil {
		return 0
	}
	raw, ok, err := a.store.Get(ctx, operatorOffsetKey)
	if err != nil || !ok {
		return 0
	}
	val, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || val < 0 {
		return 0
	}
	return val
}

func (a *App) saveOperatorOffset(ctx context.Context, offset int64) {
	if a.store == nil {
		return
	}
	_ = a.store.Set(ctx, operatorOffsetKey, strconv.FormatInt(offset, 10))
}

func (a *App) auditOperatorEvent(ctx context.Context, event operatorAuditEvent) {
	if a.store == nil {
		return
	}
	key := fmt.Sprintf("ops:audit:%d:%d", time.Now().UTC().UnixNano(), event.UpdateID)
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	_ = a.store.Set(ctx, key, string(payload))
}
