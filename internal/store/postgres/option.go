package postgres

import (
	"context"
	"errors"
	"fmt"

	internalstore "github.com/pollrelay/pollengine/internal/store"
	"github.com/pollrelay/pollengine/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const optionColumns = `id, poll_id, text, image_url, alt_text, start_time, end_time, max_capacity, "order"`

func (s *Store) ListOptions(ctx context.Context, pollID string) ([]types.Option, error) {
	rows, err := s.q.Query(ctx, fmt.Sprintf(`SELECT %s FROM poll_options WHERE poll_id = $1 ORDER BY "order", id`, optionColumns), pollID)
	if err != nil {
		return nil, fmt.Errorf("query poll options: %w", err)
	}
	defer rows.Close()

	var options []types.Option
	for rows.Next() {
		opt, err := scanOptionRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan poll option: %w", err)
		}
		options = append(options, *opt)
	}
	return options, rows.Err()
}

func (s *Store) AddOption(ctx context.Context, opt *types.Option) (*types.Option, error) {
	row := s.q.QueryRow(ctx, `
		INSERT INTO poll_options (poll_id, text, image_url, alt_text, start_time, end_time, max_capacity, "order")
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id`,
		opt.PollID, opt.Text, opt.ImageURL, opt.AltText, pgTimestamptz(opt.StartTime), pgTimestamptz(opt.EndTime), pgInt4(opt.MaxCapacity), opt.Order,
	)
	if err := row.Scan(&opt.ID); err != nil {
		return nil, fmt.Errorf("insert poll option: %w", err)
	}
	return opt, nil
}

func (s *Store) UpdateOption(ctx context.Context, id int, patch internalstore.OptionPatch) (*types.Option, error) {
	sets := []string{}
	args := []interface{}{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if patch.Text != nil {
		sets = append(sets, "text = "+arg(*patch.Text))
	}
	if patch.ImageURL != nil {
		sets = append(sets, "image_url = "+arg(*patch.ImageURL))
	}
	if patch.AltText != nil {
		sets = append(sets, "alt_text = "+arg(*patch.AltText))
	}
	if patch.StartTime != nil {
		sets = append(sets, "start_time = to_timestamp("+arg(*patch.StartTime)+")")
	}
	if patch.EndTime != nil {
		sets = append(sets, "end_time = to_timestamp("+arg(*patch.EndTime)+")")
	}
	if patch.MaxCapacity != nil {
		sets = append(sets, "max_capacity = "+arg(*patch.MaxCapacity))
	}
	if patch.Order != nil {
		sets = append(sets, `"order" = `+arg(*patch.Order))
	}

	if len(sets) == 0 {
		return s.getOptionByID(ctx, id)
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE poll_options SET %s WHERE id = $%d", joinComma(sets), len(args))
	if _, err := s.q.Exec(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("update poll option: %w", err)
	}
	return s.getOptionByID(ctx, id)
}

func (s *Store) DeleteOption(ctx context.Context, id int) error {
	_, err := s.q.Exec(ctx, "DELETE FROM poll_options WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete poll option: %w", err)
	}
	return nil
}

func (s *Store) getOptionByID(ctx context.Context, id int) (*types.Option, error) {
	row := s.q.QueryRow(ctx, fmt.Sprintf("SELECT %s FROM poll_options WHERE id = $1", optionColumns), id)
	opt, err := scanOptionRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, internalstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan poll option: %w", err)
	}
	return opt, nil
}

func scanOptionRow(row rowScanner) (*types.Option, error) {
	var o types.Option
	var startTime, endTime pgtype.Timestamptz
	var maxCapacity pgtype.Int4

	if err := row.Scan(&o.ID, &o.PollID, &o.Text, &o.ImageURL, &o.AltText, &startTime, &endTime, &maxCapacity, &o.Order); err != nil {
		return nil, err
	}
	o.StartTime = timeFromPg(startTime)
	o.EndTime = timeFromPg(endTime)
	o.MaxCapacity = intFromPg(maxCapacity)
	return &o, nil
}
