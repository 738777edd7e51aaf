package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"BetLedger/internal/ledger"
)

// PostgresStore is the durable Store. Each atomic unit (confirmation,
// per-user settlement, per-user correction) executes inside one DB
// transaction so a persistence failure never leaves partially-applied state.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, u *ledger.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO betledger.users (id, balance, exposure) VALUES ($1, $2, $3)`,
		u.ID, u.Balance, u.Exposure,
	)
	return err
}

func (s *PostgresStore) GetUser(ctx context.Context, id uuid.UUID) (*ledger.User, error) {
	u := &ledger.User{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, balance, exposure FROM betledger.users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Balance, &u.Exposure)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *PostgresStore) GetMatch(ctx context.Context, key string) (*ledger.Match, error) {
	m := &ledger.Match{}
	err := s.db.QueryRowContext(ctx,
		`SELECT key, last_known_state, distribution_done, finished, deletion_attempts
		   FROM betledger.matches WHERE key = $1`, key,
	).Scan(&m.Key, &m.LastKnownState, &m.DistributionDone, &m.Finished, &m.DeletionAttempts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (s *PostgresStore) UpsertMatch(ctx context.Context, m *ledger.Match) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO betledger.matches (key, last_known_state, distribution_done, finished, deletion_attempts)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (key) DO UPDATE SET
		   last_known_state = EXCLUDED.last_known_state,
		   distribution_done = EXCLUDED.distribution_done,
		   finished = EXCLUDED.finished,
		   deletion_attempts = EXCLUDED.deletion_attempts`,
		m.Key, m.LastKnownState, m.DistributionDone, m.Finished, m.DeletionAttempts,
	)
	return err
}

func (s *PostgresStore) UnsettledMatches(ctx context.Context) ([]*ledger.Match, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, last_known_state, distribution_done, finished, deletion_attempts
		   FROM betledger.matches
		  WHERE NOT distribution_done AND NOT finished
		  ORDER BY key`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ledger.Match
	for rows.Next() {
		m := &ledger.Match{}
		if err := rows.Scan(&m.Key, &m.LastKnownState, &m.DistributionDone, &m.Finished, &m.DeletionAttempts); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateWager(ctx context.Context, w *ledger.Wager) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO betledger.wagers
		   (id, user_id, match_key, session_name, side, kind, stake, odd, status, placed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		w.ID, w.UserID, w.MatchKey, w.SessionName, w.Side, w.Kind.String(),
		w.Stake, w.Odd, w.Status.String(), w.PlacedAt,
	)
	return err
}

func scanWager(scan func(dest ...interface{}) error) (*ledger.Wager, error) {
	w := &ledger.Wager{}
	var kind, status string
	if err := scan(&w.ID, &w.UserID, &w.MatchKey, &w.SessionName, &w.Side,
		&kind, &w.Stake, &w.Odd, &status, &w.PlacedAt); err != nil {
		return nil, err
	}
	var err error
	if w.Kind, err = ledger.ParseBetKind(kind); err != nil {
		return nil, err
	}
	if w.Status, err = ledger.ParseWagerStatus(status); err != nil {
		return nil, err
	}
	return w, nil
}

const wagerCols = `id, user_id, match_key, session_name, side, kind, stake, odd, status, placed_at`

func (s *PostgresStore) GetWager(ctx context.Context, id uuid.UUID) (*ledger.Wager, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+wagerCols+` FROM betledger.wagers WHERE id = $1`, id)
	w, err := scanWager(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return w, err
}

func (s *PostgresStore) UpdateWagerStatus(ctx context.Context, id uuid.UUID, status ledger.WagerStatus) error {
	current, err := s.GetWager(ctx, id)
	if err != nil {
		return err
	}
	if !current.Status.CanTransitionTo(status) {
		return fmt.Errorf("wager %s: illegal transition %s -> %s", id, current.Status, status)
	}
	// Optimistic guard on the status read above.
	res, err := s.db.ExecContext(ctx,
		`UPDATE betledger.wagers SET status = $1 WHERE id = $2 AND status = $3`,
		status.String(), id, current.Status.String(),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrSettlementConflict
	}
	return nil
}

func (s *PostgresStore) wagersWhere(ctx context.Context, where string, args ...interface{}) ([]*ledger.Wager, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+wagerCols+` FROM betledger.wagers WHERE `+where+` ORDER BY placed_at, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ledger.Wager
	for rows.Next() {
		w, err := scanWager(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *PostgresStore) WagersByStatus(ctx context.Context, matchKey string, status ledger.WagerStatus) ([]*ledger.Wager, error) {
	return s.wagersWhere(ctx, `match_key = $1 AND status = $2`, matchKey, status.String())
}

func (s *PostgresStore) UserWagersByStatus(ctx context.Context, userID uuid.UUID, matchKey string, status ledger.WagerStatus) ([]*ledger.Wager, error) {
	return s.wagersWhere(ctx, `user_id = $1 AND match_key = $2 AND status = $3`,
		userID, matchKey, status.String())
}

func (s *PostgresStore) PendingWagers(ctx context.Context) ([]*ledger.Wager, error) {
	return s.wagersWhere(ctx, `status = $1`, ledger.WagerStatusPending.String())
}

func (s *PostgresStore) ActiveExposure(ctx context.Context, userID uuid.UUID, matchKey, session string) (*ledger.ExposureRow, error) {
	r := &ledger.ExposureRow{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, match_key, session_name, amount, active
		   FROM betledger.user_exposure
		  WHERE user_id = $1 AND match_key = $2 AND session_name = $3 AND active`,
		userID, matchKey, session,
	).Scan(&r.ID, &r.UserID, &r.MatchKey, &r.SessionName, &r.Amount, &r.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *PostgresStore) InactiveExposure(ctx context.Context, userID uuid.UUID, matchKey, session string) (*ledger.ExposureRow, error) {
	r := &ledger.ExposureRow{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, match_key, session_name, amount, active
		   FROM betledger.user_exposure
		  WHERE user_id = $1 AND match_key = $2 AND session_name = $3 AND NOT active
		  ORDER BY created_at DESC, id DESC
		  LIMIT 1`,
		userID, matchKey, session,
	).Scan(&r.ID, &r.UserID, &r.MatchKey, &r.SessionName, &r.Amount, &r.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *PostgresStore) ExposureRows(ctx context.Context, ids []uuid.UUID) ([]*ledger.ExposureRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, match_key, session_name, amount, active
		   FROM betledger.user_exposure WHERE id = ANY($1)`,
		pq.Array(ids),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ledger.ExposureRow
	for rows.Next() {
		r := &ledger.ExposureRow{}
		if err := rows.Scan(&r.ID, &r.UserID, &r.MatchKey, &r.SessionName, &r.Amount, &r.Active); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanTxn(scan func(dest ...interface{}) error) (*ledger.Transaction, error) {
	t := &ledger.Transaction{}
	var typ, status string
	if err := scan(&t.ID, &t.UserID, &typ, &t.Amount, &t.Remark, &status, &t.BalanceAfter, &t.CreatedAt); err != nil {
		return nil, err
	}
	var err error
	if t.Type, err = ledger.ParseTxType(typ); err != nil {
		return nil, err
	}
	if t.Status, err = ledger.ParseTxStatus(status); err != nil {
		return nil, err
	}
	return t, nil
}

const txnCols = `id, user_id, type, amount, remark, status, balance_after, created_at`

func (s *PostgresStore) txnsWhere(ctx context.Context, where string, args ...interface{}) ([]*ledger.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+txnCols+` FROM betledger.transactions WHERE `+where+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ledger.Transaction
	for rows.Next() {
		t, err := scanTxn(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SettlementTransactions(ctx context.Context, matchKey string) ([]*ledger.Transaction, error) {
	return s.txnsWhere(ctx, `status = 'done' AND remark LIKE $1 || '%'`, ledger.RemarkPrefix(matchKey))
}

func (s *PostgresStore) UserTransactions(ctx context.Context, userID uuid.UUID) ([]*ledger.Transaction, error) {
	return s.txnsWhere(ctx, `user_id = $1`, userID)
}

func (s *PostgresStore) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ledger.WrapPersistence(op, err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return ledger.WrapPersistence(op, err)
	}
	if err := tx.Commit(); err != nil {
		return ledger.WrapPersistence(op, err)
	}
	return nil
}

func (s *PostgresStore) ApplyConfirmation(ctx context.Context, c *Confirmation) error {
	return s.inTx(ctx, "confirmation", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE betledger.wagers SET status = 'confirmed', odd = $1
			  WHERE id = $2 AND status = 'pending'`,
			c.Wager.Odd, c.Wager.ID,
		)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("wager %s not pending", c.Wager.ID)
		}

		if c.ReplaceRowID != nil {
			if _, err := tx.ExecContext(ctx,
				`UPDATE betledger.user_exposure SET active = FALSE WHERE id = $1`,
				*c.ReplaceRowID,
			); err != nil {
				return err
			}
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO betledger.user_exposure (id, user_id, match_key, session_name, amount, active)
			 VALUES ($1, $2, $3, $4, $5, TRUE)`,
			c.Exposure.ID, c.Exposure.UserID, c.Exposure.MatchKey, c.Exposure.SessionName, c.Exposure.Amount,
		); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE betledger.users SET exposure = $1 WHERE id = $2`,
			c.UserExposure, c.Wager.UserID,
		)
		return err
	})
}

func (s *PostgresStore) ApplySettlement(ctx context.Context, us *UserSettlement) error {
	return s.inTx(ctx, "settlement", func(tx *sql.Tx) error {
		for _, t := range us.Transactions {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO betledger.transactions (`+txnCols+`)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				t.ID, t.UserID, t.Type.String(), t.Amount, t.Remark,
				t.Status.String(), t.BalanceAfter, t.CreatedAt,
			); err != nil {
				return err
			}
		}

		for id, status := range us.WagerStatus {
			res, err := tx.ExecContext(ctx,
				`UPDATE betledger.wagers SET status = $1 WHERE id = $2 AND status = 'confirmed'`,
				status.String(), id,
			)
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return ledger.ErrSettlementConflict
			}
		}

		if len(us.DeactivateRows) > 0 {
			if _, err := tx.ExecContext(ctx,
				`UPDATE betledger.user_exposure SET active = FALSE WHERE id = ANY($1)`,
				pq.Array(us.DeactivateRows),
			); err != nil {
				return err
			}
		}

		_, err := tx.ExecContext(ctx,
			`UPDATE betledger.users SET balance = $1, exposure = $2 WHERE id = $3`,
			us.Balance, us.Exposure, us.UserID,
		)
		return err
	})
}

func (s *PostgresStore) ApplyCorrection(ctx context.Context, uc *UserCorrection) error {
	return s.inTx(ctx, "correction", func(tx *sql.Tx) error {
		if len(uc.ReverseTxIDs) > 0 {
			res, err := tx.ExecContext(ctx,
				`UPDATE betledger.transactions SET status = 'reversed'
				  WHERE id = ANY($1) AND status = 'done'`,
				pq.Array(uc.ReverseTxIDs),
			)
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n != int64(len(uc.ReverseTxIDs)) {
				return ledger.ErrSettlementConflict
			}
		}

		for id, status := range uc.WagerStatus {
			if _, err := tx.ExecContext(ctx,
				`UPDATE betledger.wagers SET status = $1 WHERE id = $2`,
				status.String(), id,
			); err != nil {
				return err
			}
		}

		if len(uc.ReactivateRows) > 0 {
			if _, err := tx.ExecContext(ctx,
				`UPDATE betledger.user_exposure SET active = TRUE WHERE id = ANY($1)`,
				pq.Array(uc.ReactivateRows),
			); err != nil {
				return err
			}
		}

		_, err := tx.ExecContext(ctx,
			`UPDATE betledger.users SET balance = $1, exposure = $2 WHERE id = $3`,
			uc.Balance, uc.Exposure, uc.UserID,
		)
		return err
	})
}

var _ Store = (*PostgresStore)(nil)
