// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/billing-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrAccountNotFound возвращается, если счёт не найден.
var (
	ErrAccountNotFound = errors.New("account not found")
	// ErrProductNotFound возвращается, если продукт не найден.
	ErrProductNotFound = errors.New("product not found")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrLoanNotFound возвращается, если для счёта нет кредитных деталей.
	ErrLoanNotFound = errors.New("loan details not found")
	// ErrObligationChanged возвращается, если обязательство изменилось между
	// чтением и применением компенсации; вся транзакция откатывается.
	ErrObligationChanged = errors.New("obligation changed concurrently")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		// Ретраи полезны для Serialization Failure и Deadlock.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// UserExists проверяет существование пользователя.
func (r *PostgresRepository) UserExists(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`,
		userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check user: %w", err)
	}
	return exists, nil
}

// GetProduct возвращает продукт по идентификатору.
func (r *PostgresRepository) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, name, type, COALESCE(loan_type, ''), interest_rate, monthly_fee,
		        monthly_quota, penalty_amount, penalty_rate, term_months, grace_days, created_at
		 FROM products WHERE id = $1`,
		id,
	)

	var p model.Product
	err := row.Scan(&p.ID, &p.Name, &p.Type, &p.LoanType, &p.InterestRate, &p.MonthlyFee,
		&p.MonthlyQuota, &p.PenaltyAmount, &p.PenaltyRate, &p.TermMonths, &p.GraceDays, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return &p, nil
}

// GetAccount возвращает счёт по идентификатору.
func (r *PostgresRepository) GetAccount(ctx context.Context, id int64) (*model.Account, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, user_id, product_id, balance, status, opened_at, closed_at
		 FROM accounts WHERE id = $1`,
		id,
	)

	var a model.Account
	err := row.Scan(&a.ID, &a.UserID, &a.ProductID, &a.Balance, &a.Status, &a.OpenedAt, &a.ClosedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}

	return &a, nil
}

// GetLoanDetails возвращает параметры кредита для счёта.
func (r *PostgresRepository) GetLoanDetails(ctx context.Context, accountID int64) (*model.LoanDetails, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT account_id, loan_type, principal_amount, current_balance, term_months,
		        monthly_payment, monthly_interest, interest_rate, maturity_date, last_accrual_date
		 FROM loan_details WHERE account_id = $1`,
		accountID,
	)

	var d model.LoanDetails
	err := row.Scan(&d.AccountID, &d.LoanType, &d.PrincipalAmount, &d.CurrentBalance, &d.TermMonths,
		&d.MonthlyPayment, &d.MonthlyInterest, &d.InterestRate, &d.MaturityDate, &d.LastAccrualDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLoanNotFound
		}
		return nil, fmt.Errorf("get loan details: %w", err)
	}

	return &d, nil
}

// CreateLoanAccount атомарно создаёт счёт, кредитные детали и запись о выдаче.
// Возвращает идентификатор созданного счёта.
func (r *PostgresRepository) CreateLoanAccount(ctx context.Context, account *model.Account, details *model.LoanDetails, disbursement *model.Transaction) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var accountID int64
	err = tx.QueryRow(ctx,
		`INSERT INTO accounts (user_id, product_id, balance, status, opened_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		account.UserID, account.ProductID, account.Balance, account.Status, account.OpenedAt,
	).Scan(&accountID)
	if err != nil {
		return 0, fmt.Errorf("insert account: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO loan_details (account_id, loan_type, principal_amount, current_balance,
		        term_months, monthly_payment, monthly_interest, interest_rate, maturity_date, last_accrual_date)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		accountID, details.LoanType, details.PrincipalAmount, details.CurrentBalance,
		details.TermMonths, details.MonthlyPayment, details.MonthlyInterest, details.InterestRate,
		details.MaturityDate, details.LastAccrualDate,
	)
	if err != nil {
		return 0, fmt.Errorf("insert loan details: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO transactions (id, account_id, amount, type, status, value_date)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		disbursement.ID, accountID, disbursement.Amount, disbursement.Type, disbursement.Status, disbursement.Date,
	)
	if err != nil {
		return 0, fmt.Errorf("insert disbursement: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	return accountID, nil
}

// LoanAccount объединяет активный счёт с его кредитными деталями.
type LoanAccount struct {
	Account model.Account
	Details model.LoanDetails
}

// GetActiveLoanAccounts возвращает активные кредитные счета указанного подтипа
// с ненулевым остатком долга.
func (r *PostgresRepository) GetActiveLoanAccounts(ctx context.Context, loanType model.LoanType) ([]LoanAccount, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.id, a.user_id, a.product_id, a.balance, a.status, a.opened_at, a.closed_at,
		        d.account_id, d.loan_type, d.principal_amount, d.current_balance, d.term_months,
		        d.monthly_payment, d.monthly_interest, d.interest_rate, d.maturity_date, d.last_accrual_date
		 FROM accounts a
		 JOIN loan_details d ON d.account_id = a.id
		 WHERE a.status = $1 AND d.loan_type = $2 AND d.current_balance > 0
		 ORDER BY a.id`,
		string(model.AccountStatusActive), string(loanType),
	)
	if err != nil {
		return nil, fmt.Errorf("select loan accounts: %w", err)
	}
	defer rows.Close()

	var res []LoanAccount
	for rows.Next() {
		var la LoanAccount
		if err := rows.Scan(
			&la.Account.ID, &la.Account.UserID, &la.Account.ProductID, &la.Account.Balance,
			&la.Account.Status, &la.Account.OpenedAt, &la.Account.ClosedAt,
			&la.Details.AccountID, &la.Details.LoanType, &la.Details.PrincipalAmount,
			&la.Details.CurrentBalance, &la.Details.TermMonths, &la.Details.MonthlyPayment,
			&la.Details.MonthlyInterest, &la.Details.InterestRate, &la.Details.MaturityDate,
			&la.Details.LastAccrualDate,
		); err != nil {
			return nil, fmt.Errorf("scan loan account: %w", err)
		}
		res = append(res, la)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// SavingsAccount объединяет активный сберегательный счёт с его продуктом.
type SavingsAccount struct {
	Account model.Account
	Product model.Product
}

// GetActiveSavingsAccounts возвращает активные сберегательные счета с продуктами.
func (r *PostgresRepository) GetActiveSavingsAccounts(ctx context.Context) ([]SavingsAccount, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.id, a.user_id, a.product_id, a.balance, a.status, a.opened_at, a.closed_at,
		        p.id, p.name, p.type, COALESCE(p.loan_type, ''), p.interest_rate, p.monthly_fee,
		        p.monthly_quota, p.penalty_amount, p.penalty_rate, p.term_months, p.grace_days, p.created_at
		 FROM accounts a
		 JOIN products p ON p.id = a.product_id
		 WHERE a.status = $1 AND p.type = $2
		 ORDER BY a.id`,
		string(model.AccountStatusActive), string(model.ProductTypeSavings),
	)
	if err != nil {
		return nil, fmt.Errorf("select savings accounts: %w", err)
	}
	defer rows.Close()

	var res []SavingsAccount
	for rows.Next() {
		var sa SavingsAccount
		if err := rows.Scan(
			&sa.Account.ID, &sa.Account.UserID, &sa.Account.ProductID, &sa.Account.Balance,
			&sa.Account.Status, &sa.Account.OpenedAt, &sa.Account.ClosedAt,
			&sa.Product.ID, &sa.Product.Name, &sa.Product.Type, &sa.Product.LoanType,
			&sa.Product.InterestRate, &sa.Product.MonthlyFee, &sa.Product.MonthlyQuota,
			&sa.Product.PenaltyAmount, &sa.Product.PenaltyRate, &sa.Product.TermMonths,
			&sa.Product.GraceDays, &sa.Product.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan savings account: %w", err)
		}
		res = append(res, sa)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// PeriodChargeExists проверяет, есть ли в журнале запись указанного типа за
// период, независимо от её статуса. Погашенная квота не освобождает период:
// у завершённой записи related_id указывает на платёж и она выходит из
// частичного уникального индекса, поэтому занятость периода проверяется
// отдельным запросом.
func (r *PostgresRepository) PeriodChargeExists(ctx context.Context, accountID int64, txType model.TransactionType, month, year int) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
		    SELECT 1 FROM transactions
		    WHERE account_id = $1 AND type = $2 AND month = $3 AND year = $4
		 )`,
		accountID, string(txType), month, year,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check period charge: %w", err)
	}
	return exists, nil
}

// CreateTransaction сохраняет запись журнала. Возвращает false, если запись
// с таким идемпотентным ключом (счёт, тип, период) уже существует.
func (r *PostgresRepository) CreateTransaction(ctx context.Context, t *model.Transaction) (bool, error) {
	var inserted bool
	err := r.withRetry(ctx, func() error {
		cmdTag, err := r.pool.Exec(ctx,
			`INSERT INTO transactions (id, account_id, amount, type, status, due_date, month, year, related_id, value_date)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 ON CONFLICT DO NOTHING`,
			t.ID, t.AccountID, t.Amount, t.Type, t.Status, t.DueDate,
			nullableInt(t.Month), nullableInt(t.Year), t.RelatedID, t.Date,
		)
		if err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
		inserted = cmdTag.RowsAffected() == 1
		return nil
	})
	return inserted, err
}

// ChargeManagementFee атомарно создаёт комиссию за обслуживание и списывает её
// с баланса счёта. Возвращает false, если комиссия за период уже была начислена.
func (r *PostgresRepository) ChargeManagementFee(ctx context.Context, fee *model.Transaction) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	cmdTag, err := tx.Exec(ctx,
		`INSERT INTO transactions (id, account_id, amount, type, status, month, year, value_date)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT DO NOTHING`,
		fee.ID, fee.AccountID, fee.Amount, fee.Type, fee.Status,
		nullableInt(fee.Month), nullableInt(fee.Year), fee.Date,
	)
	if err != nil {
		return false, fmt.Errorf("insert management fee: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		return false, nil
	}

	_, err = tx.Exec(ctx,
		`UPDATE accounts SET balance = balance - $2 WHERE id = $1`,
		fee.AccountID, fee.Amount,
	)
	if err != nil {
		return false, fmt.Errorf("decrement balance: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit tx: %w", err)
	}

	return true, nil
}

// MarkOverdue переводит просроченные PENDING-обязательства в статус OVERDUE.
// Завершённые и уже просроченные записи не затрагиваются.
func (r *PostgresRepository) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	var updated int64
	err := r.withRetry(ctx, func() error {
		cmdTag, err := r.pool.Exec(ctx,
			`UPDATE transactions SET status = $1
			 WHERE status = $2 AND due_date IS NOT NULL AND due_date < $3`,
			string(model.TransactionStatusOverdue), string(model.TransactionStatusPending), asOf,
		)
		if err != nil {
			return fmt.Errorf("mark overdue: %w", err)
		}
		updated = cmdTag.RowsAffected()
		return nil
	})
	return updated, err
}

// OverdueDue описывает просроченную квоту без штрафа вместе с конфигурацией
// штрафа из продукта.
type OverdueDue struct {
	Due           model.Transaction
	PenaltyAmount decimal.Decimal
	PenaltyRate   decimal.Decimal
}

// GetOverdueDuesWithoutPenalty возвращает просроченные квоты, для периода
// которых ещё не создан штраф.
func (r *PostgresRepository) GetOverdueDuesWithoutPenalty(ctx context.Context) ([]OverdueDue, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT t.id, t.account_id, t.amount, t.type, t.status, t.due_date, t.month, t.year,
		        t.related_id, t.value_date, t.created_at,
		        p.penalty_amount, p.penalty_rate
		 FROM transactions t
		 JOIN accounts a ON a.id = t.account_id
		 JOIN products p ON p.id = a.product_id
		 WHERE t.type = $1 AND t.status = $2
		   AND NOT EXISTS (
		       SELECT 1 FROM transactions x
		       WHERE x.account_id = t.account_id AND x.type = $3
		         AND x.month = t.month AND x.year = t.year
		   )
		 ORDER BY t.year, t.month, t.account_id`,
		string(model.TransactionTypeFeePayment),
		string(model.TransactionStatusOverdue),
		string(model.TransactionTypePenaltyFee),
	)
	if err != nil {
		return nil, fmt.Errorf("select overdue dues: %w", err)
	}
	defer rows.Close()

	var res []OverdueDue
	for rows.Next() {
		var od OverdueDue
		if err := scanTransaction(rows, &od.Due, &od.PenaltyAmount, &od.PenaltyRate); err != nil {
			return nil, fmt.Errorf("scan overdue due: %w", err)
		}
		res = append(res, od)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CreateInterestAccrual атомарно создаёт начисление процентов и обновляет дату
// последнего начисления. Возвращает false, если начисление за этот день уже есть.
func (r *PostgresRepository) CreateInterestAccrual(ctx context.Context, accrual *model.Transaction) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	cmdTag, err := tx.Exec(ctx,
		`INSERT INTO transactions (id, account_id, amount, type, status, value_date)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT DO NOTHING`,
		accrual.ID, accrual.AccountID, accrual.Amount, accrual.Type, accrual.Status, accrual.Date,
	)
	if err != nil {
		return false, fmt.Errorf("insert interest accrual: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		return false, nil
	}

	_, err = tx.Exec(ctx,
		`UPDATE loan_details SET last_accrual_date = $2 WHERE account_id = $1`,
		accrual.AccountID, accrual.Date,
	)
	if err != nil {
		return false, fmt.Errorf("update last accrual date: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit tx: %w", err)
	}

	return true, nil
}

// GetPendingObligations возвращает непогашенные штрафы (по возрастанию даты)
// и квоты (по возрастанию периода) счёта.
func (r *PostgresRepository) GetPendingObligations(ctx context.Context, accountID int64) (penalties, dues []model.Transaction, err error) {
	penalties, err = r.selectTransactions(ctx,
		`SELECT id, account_id, amount, type, status, due_date, month, year, related_id, value_date, created_at
		 FROM transactions
		 WHERE account_id = $1 AND type = $2 AND status IN ($3, $4)
		 ORDER BY value_date, created_at`,
		accountID, string(model.TransactionTypePenaltyFee),
		string(model.TransactionStatusPending), string(model.TransactionStatusOverdue),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("select pending penalties: %w", err)
	}

	dues, err = r.selectTransactions(ctx,
		`SELECT id, account_id, amount, type, status, due_date, month, year, related_id, value_date, created_at
		 FROM transactions
		 WHERE account_id = $1 AND type = $2 AND status IN ($3, $4)
		 ORDER BY year, month`,
		accountID, string(model.TransactionTypeFeePayment),
		string(model.TransactionStatusPending), string(model.TransactionStatusOverdue),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("select pending dues: %w", err)
	}

	return penalties, dues, nil
}

// GetPendingInterest возвращает непогашенные начисления процентов по возрастанию даты.
func (r *PostgresRepository) GetPendingInterest(ctx context.Context, accountID int64) ([]model.Transaction, error) {
	res, err := r.selectTransactions(ctx,
		`SELECT id, account_id, amount, type, status, due_date, month, year, related_id, value_date, created_at
		 FROM transactions
		 WHERE account_id = $1 AND type = $2 AND status = $3
		 ORDER BY value_date, created_at`,
		accountID, string(model.TransactionTypeInterestAccrued),
		string(model.TransactionStatusPending),
	)
	if err != nil {
		return nil, fmt.Errorf("select pending interest: %w", err)
	}
	return res, nil
}

// CompensationOp описывает применение платежа к одному обязательству.
type CompensationOp struct {
	TransactionID uuid.UUID
	Amount        decimal.Decimal // погашаемая часть
	Full          bool            // true — обязательство закрывается целиком
	Split         *model.Transaction
}

// PaymentApply описывает полный план применения платежа: запись платежа,
// компенсации обязательств, дополнительные записи и изменение балансов.
type PaymentApply struct {
	AccountID int64
	Payment   *model.Transaction
	Ops       []CompensationOp
	Extra     []*model.Transaction // INTEREST_PAYMENT / LOAN_PAYMENT

	NewLoanBalance    *decimal.Decimal
	NewAccountBalance *decimal.Decimal
	CloseAccount      bool
	ClosedAt          time.Time
}

// ApplyPayment применяет план платежа в одной транзакции БД: либо фиксируются
// все изменения, либо ни одно. Строка счёта блокируется на время применения.
func (r *PostgresRepository) ApplyPayment(ctx context.Context, apply PaymentApply) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		// Блокируем строку счёта для сериализации платежей по одному счёту.
		var dummy int
		err = tx.QueryRow(ctx, `SELECT 1 FROM accounts WHERE id = $1 FOR UPDATE`, apply.AccountID).Scan(&dummy)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrAccountNotFound
			}
			return fmt.Errorf("lock account: %w", err)
		}

		p := apply.Payment
		_, err = tx.Exec(ctx,
			`INSERT INTO transactions (id, account_id, amount, type, status, value_date)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			p.ID, p.AccountID, p.Amount, p.Type, p.Status, p.Date,
		)
		if err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}

		for _, op := range apply.Ops {
			if op.Full {
				// Сумма сверяется со снимком: если параллельный платёж успел
				// частично уменьшить обязательство, план уже неверен и
				// откатывается целиком. У завершённого обязательства related_id
				// замещается ссылкой на погасивший его платёж (у штрафа при
				// этом теряется исходная ссылка на квоту).
				cmdTag, err := tx.Exec(ctx,
					`UPDATE transactions SET status = $2, related_id = $3
					 WHERE id = $1 AND status IN ($4, $5) AND amount = $6`,
					op.TransactionID, string(model.TransactionStatusCompleted), p.ID,
					string(model.TransactionStatusPending), string(model.TransactionStatusOverdue),
					op.Amount,
				)
				if err != nil {
					return fmt.Errorf("complete obligation: %w", err)
				}
				if cmdTag.RowsAffected() == 0 {
					return ErrObligationChanged
				}
				continue
			}

			// Частичная компенсация: уменьшаем остаток обязательства и
			// создаём завершённую запись на оплаченную часть.
			cmdTag, err := tx.Exec(ctx,
				`UPDATE transactions SET amount = amount - $2
				 WHERE id = $1 AND status IN ($3, $4) AND amount > $2`,
				op.TransactionID, op.Amount,
				string(model.TransactionStatusPending), string(model.TransactionStatusOverdue),
			)
			if err != nil {
				return fmt.Errorf("reduce obligation: %w", err)
			}
			if cmdTag.RowsAffected() == 0 {
				return ErrObligationChanged
			}

			if op.Split != nil {
				s := op.Split
				_, err = tx.Exec(ctx,
					`INSERT INTO transactions (id, account_id, amount, type, status, month, year, related_id, value_date)
					 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
					s.ID, s.AccountID, s.Amount, s.Type, s.Status,
					nullableInt(s.Month), nullableInt(s.Year), s.RelatedID, s.Date,
				)
				if err != nil {
					return fmt.Errorf("insert split: %w", err)
				}
			}
		}

		for _, e := range apply.Extra {
			_, err = tx.Exec(ctx,
				`INSERT INTO transactions (id, account_id, amount, type, status, related_id, value_date)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				e.ID, e.AccountID, e.Amount, e.Type, e.Status, e.RelatedID, e.Date,
			)
			if err != nil {
				return fmt.Errorf("insert payment record: %w", err)
			}
		}

		if apply.NewLoanBalance != nil {
			_, err = tx.Exec(ctx,
				`UPDATE loan_details SET current_balance = $2 WHERE account_id = $1`,
				apply.AccountID, *apply.NewLoanBalance,
			)
			if err != nil {
				return fmt.Errorf("update loan balance: %w", err)
			}
		}

		if apply.NewAccountBalance != nil {
			_, err = tx.Exec(ctx,
				`UPDATE accounts SET balance = $2 WHERE id = $1`,
				apply.AccountID, *apply.NewAccountBalance,
			)
			if err != nil {
				return fmt.Errorf("update account balance: %w", err)
			}
		}

		if apply.CloseAccount {
			_, err = tx.Exec(ctx,
				`UPDATE accounts SET status = $2, closed_at = $3 WHERE id = $1`,
				apply.AccountID, string(model.AccountStatusClosed), apply.ClosedAt,
			)
			if err != nil {
				return fmt.Errorf("close account: %w", err)
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		return nil
	})
}

// SumByTypeAndStatus возвращает сумму и количество записей журнала указанного
// типа в указанных статусах.
func (r *PostgresRepository) SumByTypeAndStatus(ctx context.Context, accountID int64, txType model.TransactionType, statuses ...model.TransactionStatus) (decimal.Decimal, int, error) {
	strs := make([]string, 0, len(statuses))
	for _, s := range statuses {
		strs = append(strs, string(s))
	}

	var sum decimal.Decimal
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0), COUNT(*)
		 FROM transactions
		 WHERE account_id = $1 AND type = $2 AND status = ANY($3)`,
		accountID, string(txType), strs,
	).Scan(&sum, &count)
	if err != nil {
		return decimal.Zero, 0, fmt.Errorf("sum transactions: %w", err)
	}

	return sum, count, nil
}

// GetLastPaymentDate возвращает дату последнего платежа по счёту.
func (r *PostgresRepository) GetLastPaymentDate(ctx context.Context, accountID int64) (*time.Time, error) {
	var d time.Time
	err := r.pool.QueryRow(ctx,
		`SELECT value_date FROM transactions
		 WHERE account_id = $1 AND type = ANY($2) AND status = $3
		 ORDER BY value_date DESC, created_at DESC
		 LIMIT 1`,
		accountID,
		[]string{string(model.TransactionTypeLoanPayment), string(model.TransactionTypeInterestPayment)},
		string(model.TransactionStatusCompleted),
	).Scan(&d)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get last payment date: %w", err)
	}
	return &d, nil
}

func (r *PostgresRepository) selectTransactions(ctx context.Context, query string, args ...any) ([]model.Transaction, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []model.Transaction
	for rows.Next() {
		var t model.Transaction
		if err := scanTransaction(rows, &t); err != nil {
			return nil, err
		}
		res = append(res, t)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return res, nil
}

// scanTransaction читает запись журнала; NULL-период приводится к нулю.
func scanTransaction(rows pgx.Rows, t *model.Transaction, extra ...any) error {
	var month, year *int
	dest := []any{
		&t.ID, &t.AccountID, &t.Amount, &t.Type, &t.Status, &t.DueDate,
		&month, &year, &t.RelatedID, &t.Date, &t.CreatedAt,
	}
	dest = append(dest, extra...)

	if err := rows.Scan(dest...); err != nil {
		return err
	}

	if month != nil {
		t.Month = *month
	}
	if year != nil {
		t.Year = *year
	}

	return nil
}

func nullableInt(v int) *int {
	if v == 0 {
		return nil
	}
	return &v
}
