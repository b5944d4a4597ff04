package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/billbatista/clubledger/database"
)

// AccountNames are the usernames of the clearing accounts.
type AccountNames struct {
	System string
	Andeo  string
}

var DefaultAccountNames = AccountNames{System: "system", Andeo: "andeo"}

type repository struct {
	db       database.Querier
	dialect  database.Dialect
	accounts AccountNames
}

var _ Store = (*repository)(nil)

// NewRepository returns a Store bound to db, normally a *sql.Tx.
func NewRepository(db database.Querier, dialect database.Dialect, accounts AccountNames) *repository {
	return &repository{db: db, dialect: dialect, accounts: accounts}
}

// dateArg binds a ledger date as YYYY-MM-DD so that comparisons with DATE
// columns never depend on the session time zone.
func dateArg(t time.Time) string {
	return t.Format(time.DateOnly)
}

const eventColumns = `id, type, date, name`

func scanEvent(row interface{ Scan(...any) error }) (Event, error) {
	var e Event
	err := row.Scan(&e.ID, &e.Type, &e.Date, &e.Name)
	e.Date = Day(e.Date)
	return e, err
}

func (r *repository) LockEvent(ctx context.Context, eventID int64) (Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1` + r.dialect.ForUpdate()
	event, err := scanEvent(r.db.QueryRowContext(ctx, query, eventID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Event{}, ErrEventNotFound
		}
		return Event{}, fmt.Errorf("locking event %d: %w", eventID, err)
	}
	return event, nil
}

func (r *repository) GetEvent(ctx context.Context, eventID int64) (Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1`
	event, err := scanEvent(r.db.QueryRowContext(ctx, query, eventID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Event{}, ErrEventNotFound
		}
		return Event{}, fmt.Errorf("querying event %d: %w", eventID, err)
	}
	return event, nil
}

// ListEvents returns every event ordered by (date, id).
func (r *repository) ListEvents(ctx context.Context) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+eventColumns+` FROM events ORDER BY date, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]Event, 0)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func (r *repository) CreateEvent(ctx context.Context, event *Event) error {
	query := `INSERT INTO events (type, date, name) VALUES ($1, $2, $3) RETURNING id`
	return r.db.QueryRowContext(ctx, query, event.Type, dateArg(event.Date), event.Name).Scan(&event.ID)
}

func (r *repository) UpdateEvent(ctx context.Context, event Event) error {
	query := `UPDATE events SET date = $1, name = $2 WHERE id = $3`
	_, err := r.db.ExecContext(ctx, query, dateArg(event.Date), event.Name, event.ID)
	return err
}

func (r *repository) DeleteEvent(ctx context.Context, eventID int64) error {
	for _, query := range []string{
		`DELETE FROM cost_details WHERE event_id = $1`,
		`DELETE FROM events WHERE id = $1`,
	} {
		if _, err := r.db.ExecContext(ctx, query, eventID); err != nil {
			return err
		}
	}
	return nil
}

func (r *repository) LockUsers(ctx context.Context, userIDs []int64) error {
	if r.dialect != database.Postgres || len(userIDs) == 0 {
		return nil
	}

	placeholders := make([]string, len(userIDs))
	args := make([]any, len(userIDs))
	for i, id := range userIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := `SELECT id FROM users WHERE id IN (` + strings.Join(placeholders, ", ") + `) ORDER BY id FOR UPDATE`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
	}
	return rows.Err()
}

func (r *repository) ClearingAccounts(ctx context.Context) (ClearingAccounts, error) {
	var accounts ClearingAccounts
	for _, a := range []struct {
		username string
		id       *int64
	}{
		{r.accounts.System, &accounts.System},
		{r.accounts.Andeo, &accounts.Andeo},
	} {
		err := r.db.QueryRowContext(ctx, `SELECT id FROM users WHERE username = $1`, a.username).Scan(a.id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return accounts, fmt.Errorf("%w: %q", ErrClearingAccountMissing, a.username)
			}
			return accounts, err
		}
	}
	return accounts, nil
}

func (r *repository) GetCostDetail(ctx context.Context, eventID int64) (*CostDetail, error) {
	query := `SELECT event_id, points_cost, money_cost, vegetarian_money_factor, participation_flat_rate,
                     participation_fee, participation_fee_recipient_id, comment
              FROM cost_details WHERE event_id = $1`

	var cost CostDetail
	var flatRate sql.NullFloat64
	var recipient sql.NullInt64
	err := r.db.QueryRowContext(ctx, query, eventID).Scan(
		&cost.EventID,
		&cost.PointsCost,
		&cost.MoneyCost,
		&cost.VegetarianMoneyFactor,
		&flatRate,
		&cost.ParticipationFee,
		&recipient,
		&cost.Comment,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if flatRate.Valid {
		cost.ParticipationFlatRate = &flatRate.Float64
	}
	if recipient.Valid {
		cost.FeeRecipientID = &recipient.Int64
	}
	return &cost, nil
}

// SaveCostDetail inserts or replaces the cost detail of an event. The money
// cost is derived and refreshed by the next rebuild.
func (r *repository) SaveCostDetail(ctx context.Context, cost CostDetail) error {
	query := `INSERT INTO cost_details (event_id, points_cost, money_cost, vegetarian_money_factor,
                  participation_flat_rate, participation_fee, participation_fee_recipient_id, comment)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
              ON CONFLICT (event_id) DO UPDATE SET
                  points_cost = excluded.points_cost,
                  vegetarian_money_factor = excluded.vegetarian_money_factor,
                  participation_flat_rate = excluded.participation_flat_rate,
                  participation_fee = excluded.participation_fee,
                  participation_fee_recipient_id = excluded.participation_fee_recipient_id,
                  comment = excluded.comment`

	var flatRate sql.NullFloat64
	if cost.ParticipationFlatRate != nil {
		flatRate = sql.NullFloat64{Float64: *cost.ParticipationFlatRate, Valid: true}
	}
	var recipient sql.NullInt64
	if cost.FeeRecipientID != nil {
		recipient = sql.NullInt64{Int64: *cost.FeeRecipientID, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		cost.EventID,
		cost.PointsCost,
		cost.MoneyCost,
		cost.VegetarianMoneyFactor,
		flatRate,
		cost.ParticipationFee,
		recipient,
		cost.Comment,
	)
	return err
}

func (r *repository) UpdateMoneyCost(ctx context.Context, eventID int64, moneyCost float64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE cost_details SET money_cost = $1 WHERE event_id = $2`, moneyCost, eventID)
	return err
}

func (r *repository) ListParticipations(ctx context.Context, eventID int64) ([]Participation, error) {
	query := `SELECT p.id, p.event_id, p.user_id, p.type, p.points_credited, p.money_credited, p.money_factor, u.point_exempt
              FROM participations p
              INNER JOIN users u ON u.id = p.user_id
              WHERE p.event_id = $1
              ORDER BY p.id`

	rows, err := r.db.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	participations := make([]Participation, 0)
	for rows.Next() {
		var p Participation
		err := rows.Scan(&p.ID, &p.EventID, &p.UserID, &p.Type, &p.PointsCredited, &p.MoneyCredited, &p.MoneyFactor, &p.PointExempt)
		if err != nil {
			return nil, err
		}
		participations = append(participations, p)
	}
	return participations, rows.Err()
}

// SaveParticipation upserts the participation of p.UserID in p.EventID and
// sets p.ID.
func (r *repository) SaveParticipation(ctx context.Context, p *Participation) error {
	query := `INSERT INTO participations (event_id, user_id, type, points_credited, money_credited, money_factor)
              VALUES ($1, $2, $3, $4, $5, $6)
              ON CONFLICT (event_id, user_id) DO UPDATE SET
                  type = excluded.type,
                  points_credited = excluded.points_credited,
                  money_credited = excluded.money_credited,
                  money_factor = excluded.money_factor
              RETURNING id`
	return r.db.QueryRowContext(ctx, query, p.EventID, p.UserID, p.Type, p.PointsCredited, p.MoneyCredited, p.MoneyFactor).Scan(&p.ID)
}

func (r *repository) DeleteParticipation(ctx context.Context, eventID, userID int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM participations WHERE event_id = $1 AND user_id = $2`, eventID, userID)
	if err != nil {
		return err
	}
	return expectAffected(res, ErrParticipationNotFound)
}

func (r *repository) DeleteParticipations(ctx context.Context, eventID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM participations WHERE event_id = $1`, eventID)
	return err
}

func (r *repository) ListTransfers(ctx context.Context, eventID int64) ([]Transfer, error) {
	query := `SELECT id, event_id, sender_id, recipient_id, currency, amount
              FROM transfers WHERE event_id = $1 ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transfers := make([]Transfer, 0)
	for rows.Next() {
		var t Transfer
		if err := rows.Scan(&t.ID, &t.EventID, &t.SenderID, &t.RecipientID, &t.Currency, &t.Amount); err != nil {
			return nil, err
		}
		transfers = append(transfers, t)
	}
	return transfers, rows.Err()
}

func (r *repository) CreateTransfer(ctx context.Context, t *Transfer) error {
	query := `INSERT INTO transfers (event_id, sender_id, recipient_id, currency, amount)
              VALUES ($1, $2, $3, $4, $5) RETURNING id`
	return r.db.QueryRowContext(ctx, query, t.EventID, t.SenderID, t.RecipientID, t.Currency, t.Amount).Scan(&t.ID)
}

func (r *repository) DeleteTransfer(ctx context.Context, eventID, transferID int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transfers WHERE event_id = $1 AND id = $2`, eventID, transferID)
	if err != nil {
		return err
	}
	return expectAffected(res, ErrTransferNotFound)
}

func (r *repository) DeleteTransfers(ctx context.Context, eventID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM transfers WHERE event_id = $1`, eventID)
	return err
}

const transactionColumns = `id, date, user_id, contra_user_id, currency, amount, balance, event_id`

func scanTransactions(rows *sql.Rows) ([]Transaction, error) {
	defer rows.Close()

	transactions := make([]Transaction, 0)
	for rows.Next() {
		var t Transaction
		err := rows.Scan(&t.ID, &t.Date, &t.UserID, &t.ContraUserID, &t.Currency, &t.Amount, &t.Balance, &t.EventID)
		if err != nil {
			return nil, err
		}
		t.Date = Day(t.Date)
		transactions = append(transactions, t)
	}
	return transactions, rows.Err()
}

func (r *repository) ListEventTransactions(ctx context.Context, eventID int64) ([]Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE event_id = $1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, err
	}
	return scanTransactions(rows)
}

// ListUserTransactions returns the latest transactions of a user, newest
// first.
func (r *repository) ListUserTransactions(ctx context.Context, userID int64, currency Currency, limit int) ([]Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
              WHERE user_id = $1 AND currency = $2
              ORDER BY date DESC, id DESC
              LIMIT $3`
	rows, err := r.db.QueryContext(ctx, query, userID, currency, limit)
	if err != nil {
		return nil, err
	}
	return scanTransactions(rows)
}

func (r *repository) InsertTransaction(ctx context.Context, t *Transaction) error {
	query := `INSERT INTO transactions (date, user_id, contra_user_id, currency, amount, balance, event_id)
              VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
	return r.db.QueryRowContext(ctx, query, dateArg(t.Date), t.UserID, t.ContraUserID, t.Currency, t.Amount, t.Balance, t.EventID).Scan(&t.ID)
}

func (r *repository) UpdateTransaction(ctx context.Context, t Transaction) error {
	_, err := r.db.ExecContext(ctx, `UPDATE transactions SET date = $1, amount = $2 WHERE id = $3`, dateArg(t.Date), t.Amount, t.ID)
	return err
}

func (r *repository) DeleteTransaction(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = $1`, id)
	return err
}

func (r *repository) BalanceBefore(ctx context.Context, userID int64, currency Currency, date time.Time) (float64, error) {
	query := `SELECT balance FROM transactions
              WHERE user_id = $1 AND currency = $2 AND date < $3
              ORDER BY date DESC, id DESC
              LIMIT 1`

	var balance float64
	err := r.db.QueryRowContext(ctx, query, userID, currency, dateArg(date)).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return balance, nil
}

func (r *repository) TransactionsAfter(ctx context.Context, date time.Time, afterID int64, limit int) ([]Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
              WHERE date > $1 OR (date = $1 AND id > $2)
              ORDER BY date, id
              LIMIT $3`
	rows, err := r.db.QueryContext(ctx, query, dateArg(date), afterID, limit)
	if err != nil {
		return nil, err
	}
	return scanTransactions(rows)
}

func (r *repository) UpdateTransactionBalance(ctx context.Context, id int64, balance float64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE transactions SET balance = $1 WHERE id = $2`, balance, id)
	return err
}

func (r *repository) MaterializeUserBalances(ctx context.Context) error {
	query := `UPDATE users SET
                  points = COALESCE((SELECT t.balance FROM transactions t
                                     WHERE t.user_id = users.id AND t.currency = $1
                                     ORDER BY t.date DESC, t.id DESC LIMIT 1), 0),
                  money = COALESCE((SELECT t.balance FROM transactions t
                                    WHERE t.user_id = users.id AND t.currency = $2
                                    ORDER BY t.date DESC, t.id DESC LIMIT 1), 0)`
	_, err := r.db.ExecContext(ctx, query, Points, Money)
	return err
}

// CurrencySums returns the sum of all amounts per currency.
func (r *repository) CurrencySums(ctx context.Context) (map[Currency]float64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT currency, COALESCE(SUM(amount), 0) FROM transactions GROUP BY currency`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sums := make(map[Currency]float64, len(Currencies))
	for _, c := range Currencies {
		sums[c] = 0
	}
	for rows.Next() {
		var c Currency
		var sum float64
		if err := rows.Scan(&c, &sum); err != nil {
			return nil, err
		}
		sums[c] = sum
	}
	return sums, rows.Err()
}

func expectAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
