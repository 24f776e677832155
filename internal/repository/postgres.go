package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/mmeshcher/bloodbank-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// distanceExpr вычисляет расстояние в метрах от строки (lng, lat) до точки ($1, $2) по формуле гаверсинусов.
const distanceExpr = `2 * 6378100 * asin(least(1, sqrt(
	power(sin(radians(lat - $2) / 2), 2) +
	cos(radians($2)) * cos(radians(lat)) * power(sin(radians(lng - $1) / 2), 2))))`

const requestColumns = `id, requester_id, requester_role, blood_type, total_units, units_left, lng, lat,
	max_distance_km, urgency, notes, hospital_name, status, version, created_at, accepted_at, fulfilled_at, cancelled_at`

const userColumns = `id, name, email, phone, role, blood_type, lng, lat, available, created_at`

const campColumns = `id, name, description, date, start_time, end_time, address, city, state,
	contact_number, email, active, created_by, created_at`

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string, logger *zap.Logger) (*PostgresRepository, error) {
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

	r := &PostgresRepository{pool: pool, logger: logger}

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
	delays := []time.Duration{100 * time.Millisecond, 300 * time.Millisecond, 1 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		retryable := isConnectionError(err)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			retryable = pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
		}

		if !retryable || i == len(delays) {
			break
		}

		r.logger.Warn("retrying database operation", zap.Error(err), zap.Duration("delay", delays[i]))
		timer := time.NewTimer(delays[i])
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateUser сохраняет пользователя.
func (r *PostgresRepository) CreateUser(ctx context.Context, u *model.User) error {
	var lng, lat *float64
	if u.Location != nil {
		x, y := u.Location.Lng(), u.Location.Lat()
		lng, lat = &x, &y
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, name, email, phone, role, blood_type, lng, lat, available, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		u.ID, u.Name, u.Email, u.Phone, string(u.Role), string(u.BloodType), lng, lat, u.Available, u.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: user %s", ErrDuplicate, u.Email)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func scanUser(row pgx.Row, extra ...any) (*model.User, error) {
	var (
		u        model.User
		role, bt string
		lng, lat *float64
	)
	dest := append([]any{&u.ID, &u.Name, &u.Email, &u.Phone, &role, &bt, &lng, &lat, &u.Available, &u.CreatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	u.Role = model.Role(role)
	u.BloodType = model.BloodType(bt)
	if lng != nil && lat != nil {
		p := model.NewPoint(*lng, *lat)
		u.Location = &p
	}
	return &u, nil
}

// GetUser возвращает пользователя по идентификатору.
func (r *PostgresRepository) GetUser(ctx context.Context, id string) (*model.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// GetUsers возвращает пользователей с указанными идентификаторами.
func (r *PostgresRepository) GetUsers(ctx context.Context, ids []string) ([]model.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("select users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return users, nil
}

// FindDonorsNear возвращает доноров в радиусе, ближайшие первыми.
func (r *PostgresRepository) FindDonorsNear(ctx context.Context, q DonorQuery) ([]model.DonorMatch, error) {
	exclude := q.ExcludeIDs
	if exclude == nil {
		exclude = []string{}
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+userColumns+`, distance_m FROM (
			SELECT `+userColumns+`, `+distanceExpr+` AS distance_m
			FROM users
			WHERE role = $3 AND available AND lng IS NOT NULL AND lat IS NOT NULL
			  AND ($4 = '' OR blood_type = $4)
			  AND NOT (id = ANY($5))
		 ) u
		 WHERE distance_m <= $6
		 ORDER BY distance_m, created_at`,
		q.Point.Lng(), q.Point.Lat(), string(model.RoleDonor), string(q.BloodType), exclude, q.MaxMeters,
	)
	if err != nil {
		return nil, fmt.Errorf("select donors near: %w", err)
	}
	defer rows.Close()

	var res []model.DonorMatch
	for rows.Next() {
		var distance float64
		u, err := scanUser(rows, &distance)
		if err != nil {
			return nil, fmt.Errorf("scan donor: %w", err)
		}
		res = append(res, model.DonorMatch{User: *u, DistanceKm: distance / 1000})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// CreateRequest сохраняет новый запрос.
func (r *PostgresRepository) CreateRequest(ctx context.Context, req *model.Request) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO requests (id, requester_id, requester_role, blood_type, total_units, units_left, lng, lat,
			max_distance_km, urgency, notes, hospital_name, status, version, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		req.ID, req.RequesterID, string(req.RequesterRole), string(req.BloodType), req.TotalUnits, req.UnitsLeft,
		req.Location.Lng(), req.Location.Lat(), req.MaxDistanceKm, string(req.Urgency), req.Notes, req.HospitalName,
		string(req.Status), req.Version, req.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: request %s", ErrDuplicate, req.ID)
		}
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

func scanRequest(row pgx.Row, extra ...any) (*model.Request, error) {
	var (
		req                       model.Request
		role, bt, urgency, status string
		lng, lat                  float64
	)
	dest := append([]any{
		&req.ID, &req.RequesterID, &role, &bt, &req.TotalUnits, &req.UnitsLeft, &lng, &lat,
		&req.MaxDistanceKm, &urgency, &req.Notes, &req.HospitalName, &status, &req.Version,
		&req.CreatedAt, &req.AcceptedAt, &req.FulfilledAt, &req.CancelledAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	req.RequesterRole = model.Role(role)
	req.BloodType = model.BloodType(bt)
	req.Urgency = model.Urgency(urgency)
	req.Status = model.RequestStatus(status)
	req.Location = model.NewPoint(lng, lat)
	req.Donations = []model.DonationEvent{}
	return &req, nil
}

// GetRequest возвращает запрос по идентификатору вместе с донациями.
func (r *PostgresRepository) GetRequest(ctx context.Context, id string) (*model.Request, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+requestColumns+` FROM requests WHERE id = $1`, id)
	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get request: %w", err)
	}

	if err := r.attachDonations(ctx, []*model.Request{req}); err != nil {
		return nil, err
	}
	return req, nil
}

func (r *PostgresRepository) attachDonations(ctx context.Context, requests []*model.Request) error {
	if len(requests) == 0 {
		return nil
	}

	byID := make(map[string]*model.Request, len(requests))
	ids := make([]string, 0, len(requests))
	for _, req := range requests {
		byID[req.ID] = req
		ids = append(ids, req.ID)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT request_id, donor_id, donor_role, units_donated, donated_at
		 FROM request_donations
		 WHERE request_id = ANY($1)
		 ORDER BY seq`,
		ids,
	)
	if err != nil {
		return fmt.Errorf("select donations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			requestID, role string
			d               model.DonationEvent
		)
		if err := rows.Scan(&requestID, &d.DonorID, &role, &d.UnitsDonated, &d.DonatedAt); err != nil {
			return fmt.Errorf("scan donation: %w", err)
		}
		d.DonorRole = model.Role(role)
		if req, ok := byID[requestID]; ok {
			req.Donations = append(req.Donations, d)
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows error: %w", err)
	}
	return nil
}

// ApplyRequestTransition применяет переход в одной транзакции: условный UPDATE по версии
// и вставка донации. Если версия изменилась, ничего не записывается.
func (r *PostgresRepository) ApplyRequestTransition(ctx context.Context, id string, t model.RequestTransition) (*model.Request, error) {
	units := 0
	if t.Donation != nil {
		units = t.Donation.UnitsDonated
	}

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		tag, err := tx.Exec(ctx,
			`UPDATE requests
			 SET status = $3,
			     units_left = units_left - $4,
			     version = version + 1,
			     accepted_at = COALESCE($5, accepted_at),
			     fulfilled_at = COALESCE($6, fulfilled_at),
			     cancelled_at = COALESCE($7, cancelled_at)
			 WHERE id = $1 AND version = $2 AND units_left >= $4`,
			id, t.ExpectedVersion, string(t.Status), units, t.AcceptedAt, t.FulfilledAt, t.CancelledAt,
		)
		if err != nil {
			return fmt.Errorf("update request: %w", err)
		}

		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM requests WHERE id = $1)`, id).Scan(&exists); err != nil {
				return fmt.Errorf("check request: %w", err)
			}
			if !exists {
				return ErrNotFound
			}
			return ErrVersionConflict
		}

		if t.Donation != nil {
			_, err = tx.Exec(ctx,
				`INSERT INTO request_donations (request_id, donor_id, donor_role, units_donated, donated_at)
				 VALUES ($1, $2, $3, $4, $5)`,
				id, t.Donation.DonorID, string(t.Donation.DonorRole), t.Donation.UnitsDonated, t.Donation.DonatedAt,
			)
			if err != nil {
				if isUniqueViolation(err) {
					return ErrDuplicate
				}
				return fmt.Errorf("insert donation: %w", err)
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return r.GetRequest(ctx, id)
}

// GetRequestsByRequester возвращает запросы пользователя, новые первыми.
func (r *PostgresRepository) GetRequestsByRequester(ctx context.Context, requesterID string) ([]model.Request, error) {
	return r.selectRequests(ctx,
		`SELECT `+requestColumns+` FROM requests WHERE requester_id = $1 ORDER BY created_at DESC`,
		requesterID,
	)
}

// GetRequestsByDonor возвращает запросы, в которых пользователь сделал донацию, новые первыми.
func (r *PostgresRepository) GetRequestsByDonor(ctx context.Context, donorID string) ([]model.Request, error) {
	return r.selectRequests(ctx,
		`SELECT `+requestColumns+` FROM requests
		 WHERE id IN (SELECT request_id FROM request_donations WHERE donor_id = $1)
		 ORDER BY created_at DESC`,
		donorID,
	)
}

func (r *PostgresRepository) selectRequests(ctx context.Context, query string, args ...any) ([]model.Request, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select requests: %w", err)
	}
	defer rows.Close()

	var ptrs []*model.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		ptrs = append(ptrs, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	rows.Close()

	if err := r.attachDonations(ctx, ptrs); err != nil {
		return nil, err
	}

	res := make([]model.Request, 0, len(ptrs))
	for _, p := range ptrs {
		res = append(res, *p)
	}
	return res, nil
}

// FindRequestsNear возвращает открытые запросы в радиусе, ближайшие первыми.
func (r *PostgresRepository) FindRequestsNear(ctx context.Context, q RequestQuery) ([]model.RequestMatch, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+requestColumns+`, distance_m FROM (
			SELECT `+requestColumns+`, `+distanceExpr+` AS distance_m
			FROM requests
			WHERE status IN ($3, $4) AND units_left > 0
			  AND ($5 = '' OR blood_type = $5)
		 ) r
		 WHERE distance_m <= $6
		 ORDER BY distance_m, created_at`,
		q.Point.Lng(), q.Point.Lat(),
		string(model.RequestStatusPending), string(model.RequestStatusAccepted),
		string(q.BloodType), q.MaxMeters,
	)
	if err != nil {
		return nil, fmt.Errorf("select requests near: %w", err)
	}
	defer rows.Close()

	var (
		ptrs      []*model.Request
		distances []float64
	)
	for rows.Next() {
		var distance float64
		req, err := scanRequest(rows, &distance)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		ptrs = append(ptrs, req)
		distances = append(distances, distance)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	rows.Close()

	if err := r.attachDonations(ctx, ptrs); err != nil {
		return nil, err
	}

	res := make([]model.RequestMatch, 0, len(ptrs))
	for i, p := range ptrs {
		res = append(res, model.RequestMatch{Request: *p, DistanceKm: distances[i] / 1000})
	}
	return res, nil
}

// CreateCamp сохраняет акцию.
func (r *PostgresRepository) CreateCamp(ctx context.Context, c *model.BloodCamp) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO blood_camps (`+campColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		c.ID, c.Name, c.Description, c.Date, c.StartTime, c.EndTime, c.Address, c.City, c.State,
		c.ContactNumber, c.Email, c.Active, c.CreatedBy, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert camp: %w", err)
	}
	return nil
}

func scanCamp(row pgx.Row) (*model.BloodCamp, error) {
	var c model.BloodCamp
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.Date, &c.StartTime, &c.EndTime, &c.Address, &c.City,
		&c.State, &c.ContactNumber, &c.Email, &c.Active, &c.CreatedBy, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetCamp возвращает акцию по идентификатору.
func (r *PostgresRepository) GetCamp(ctx context.Context, id string) (*model.BloodCamp, error) {
	c, err := scanCamp(r.pool.QueryRow(ctx, `SELECT `+campColumns+` FROM blood_camps WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get camp: %w", err)
	}
	return c, nil
}

// GetActiveCamps возвращает активные акции, ближайшие по дате первыми.
func (r *PostgresRepository) GetActiveCamps(ctx context.Context) ([]model.BloodCamp, error) {
	return r.selectCamps(ctx, `SELECT `+campColumns+` FROM blood_camps WHERE active ORDER BY date, start_time`)
}

// GetCampsByCreator возвращает акции учреждения, новые первыми.
func (r *PostgresRepository) GetCampsByCreator(ctx context.Context, creatorID string) ([]model.BloodCamp, error) {
	return r.selectCamps(ctx,
		`SELECT `+campColumns+` FROM blood_camps WHERE created_by = $1 ORDER BY created_at DESC`,
		creatorID,
	)
}

func (r *PostgresRepository) selectCamps(ctx context.Context, query string, args ...any) ([]model.BloodCamp, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select camps: %w", err)
	}
	defer rows.Close()

	var camps []model.BloodCamp
	for rows.Next() {
		c, err := scanCamp(rows)
		if err != nil {
			return nil, fmt.Errorf("scan camp: %w", err)
		}
		camps = append(camps, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return camps, nil
}

// SetCampActive меняет признак активности акции.
func (r *PostgresRepository) SetCampActive(ctx context.Context, id string, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE blood_camps SET active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("update camp: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateCampDonation сохраняет донацию на акции. Ограничение UNIQUE (camp_id, donor_id) отклоняет повтор.
func (r *PostgresRepository) CreateCampDonation(ctx context.Context, d *model.CampDonation) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO camp_donations (id, camp_id, donor_id, blood_type, donated_at) VALUES ($1, $2, $3, $4, $5)`,
		d.ID, d.CampID, d.DonorID, string(d.BloodType), d.DonatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: donor %s in camp %s", ErrDuplicate, d.DonorID, d.CampID)
		}
		return fmt.Errorf("insert camp donation: %w", err)
	}
	return nil
}

// GetCampDonations возвращает донации акции в порядке записи.
func (r *PostgresRepository) GetCampDonations(ctx context.Context, campID string) ([]model.CampDonation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, camp_id, donor_id, blood_type, donated_at
		 FROM camp_donations
		 WHERE camp_id = $1
		 ORDER BY donated_at`,
		campID,
	)
	if err != nil {
		return nil, fmt.Errorf("select camp donations: %w", err)
	}
	defer rows.Close()

	var res []model.CampDonation
	for rows.Next() {
		var (
			d  model.CampDonation
			bt string
		)
		if err := rows.Scan(&d.ID, &d.CampID, &d.DonorID, &bt, &d.DonatedAt); err != nil {
			return nil, fmt.Errorf("scan camp donation: %w", err)
		}
		d.BloodType = model.BloodType(bt)
		res = append(res, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// CountCampDonationsByBloodType группирует донации указанных акций по группе крови.
func (r *PostgresRepository) CountCampDonationsByBloodType(ctx context.Context, campIDs []string) ([]model.BloodTypeCount, error) {
	if len(campIDs) == 0 {
		return nil, nil
	}

	rows, err := r.pool.Query(ctx,
		`SELECT blood_type, COUNT(*)
		 FROM camp_donations
		 WHERE camp_id = ANY($1)
		 GROUP BY blood_type
		 ORDER BY blood_type`,
		campIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("count camp donations: %w", err)
	}
	defer rows.Close()

	var res []model.BloodTypeCount
	for rows.Next() {
		var (
			bt    string
			count int64
		)
		if err := rows.Scan(&bt, &count); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		res = append(res, model.BloodTypeCount{BloodType: model.BloodType(bt), Units: int(count)})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

func donationTable(source model.DonationSource) (string, error) {
	switch source {
	case model.DonationSourceRequest:
		return "request_donations", nil
	case model.DonationSourceCamp:
		return "camp_donations", nil
	default:
		return "", fmt.Errorf("unknown donation source %q", source)
	}
}

// HasDonatedSince сообщает, есть ли в журнале донация донора не раньше since.
func (r *PostgresRepository) HasDonatedSince(ctx context.Context, source model.DonationSource, donorID string, since time.Time) (bool, error) {
	table, err := donationTable(source)
	if err != nil {
		return false, err
	}

	var exists bool
	err = r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+table+` WHERE donor_id = $1 AND donated_at >= $2)`,
		donorID, since,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check %s donations: %w", source, err)
	}
	return exists, nil
}

// DonorsSince возвращает доноров, у которых в журнале есть донация не раньше since.
func (r *PostgresRepository) DonorsSince(ctx context.Context, source model.DonationSource, since time.Time) ([]string, error) {
	query := `SELECT DISTINCT donor_id FROM camp_donations WHERE donated_at >= $1`
	args := []any{since}
	if source == model.DonationSourceRequest {
		query = `SELECT DISTINCT donor_id FROM request_donations WHERE donated_at >= $1 AND donor_role = $2`
		args = append(args, string(model.RoleDonor))
	} else if _, err := donationTable(source); err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select %s donors: %w", source, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan donor: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return ids, nil
}
