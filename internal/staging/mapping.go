package staging

import (
	"context"
	"database/sql"
	"fmt"
)

// User identity mapping rows. The identity package owns the matching
// passes; this file owns the SQL.

// EnsureMappingRow creates an unresolved mapping row for a source user if
// none exists; existing rows (including hand-edited ones) are never
// touched.
func (s *Store) EnsureMappingRow(ctx context.Context, sourceUserID int64, reason string) error {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM user_mapping WHERE source_user_id = ?", sourceUserID).Scan(&one)
	switch {
	case err == sql.ErrNoRows:
		if _, err := s.db.ExecContext(ctx,
			"INSERT INTO user_mapping (source_user_id, target_user_id, mapping_result) VALUES (?, 0, ?)",
			sourceUserID, reason); err != nil {
			return fmt.Errorf("failed to seed user mapping: %w", err)
		}
		s.Counters.IncrIns(KindMappingUser)
		return nil
	case err != nil:
		return fmt.Errorf("failed to probe user mapping: %w", err)
	default:
		return nil
	}
}

// SourceUserIDs lists every staged source user in id order.
func (s *Store) SourceUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT user_id FROM users ORDER BY user_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query source users: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan source user: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// MappingCandidate is an unresolved source user joined to a matching
// target user.
type MappingCandidate struct {
	SourceUserID int64
	SourceName   string
	TargetUserID int64
}

// UnresolvedByEmail finds unresolved mappings whose source mail address
// exactly matches a target user's. Duplicate matches resolve to the lowest
// target user id.
func (s *Store) UnresolvedByEmail(ctx context.Context) ([]MappingCandidate, error) {
	return s.mappingCandidates(ctx, `
		SELECT m.source_user_id, u1.name, MIN(u2.user_id)
		FROM user_mapping m
		INNER JOIN users u1 ON m.source_user_id = u1.user_id
		INNER JOIN target_users u2 ON u1.mail_address = u2.mail_address
		WHERE m.target_user_id = 0 AND u1.mail_address <> ''
		GROUP BY m.source_user_id, u1.name
		ORDER BY m.source_user_id`)
}

// UnresolvedByName finds unresolved mappings whose source display name
// exactly matches a target user's.
func (s *Store) UnresolvedByName(ctx context.Context) ([]MappingCandidate, error) {
	return s.mappingCandidates(ctx, `
		SELECT m.source_user_id, u1.name, MIN(u2.user_id)
		FROM user_mapping m
		INNER JOIN users u1 ON m.source_user_id = u1.user_id
		INNER JOIN target_users u2 ON u1.name = u2.name
		WHERE m.target_user_id = 0
		GROUP BY m.source_user_id, u1.name
		ORDER BY m.source_user_id`)
}

func (s *Store) mappingCandidates(ctx context.Context, query string) ([]MappingCandidate, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query mapping candidates: %w", err)
	}
	defer rows.Close()

	var out []MappingCandidate
	for rows.Next() {
		var c MappingCandidate
		var name sql.NullString
		if err := rows.Scan(&c.SourceUserID, &name, &c.TargetUserID); err != nil {
			return nil, fmt.Errorf("failed to scan mapping candidate: %w", err)
		}
		c.SourceName = name.String
		out = append(out, c)
	}
	return out, rows.Err()
}

// SetMapping records a resolved mapping with its human-readable reason.
func (s *Store) SetMapping(ctx context.Context, sourceUserID, targetUserID int64, reason string) error {
	if _, err := s.db.ExecContext(ctx,
		"UPDATE user_mapping SET target_user_id = ?, mapping_result = ? WHERE source_user_id = ?",
		targetUserID, reason, sourceUserID); err != nil {
		return fmt.Errorf("failed to set user mapping: %w", err)
	}
	s.Counters.IncrUpd(KindMappingUser)
	return nil
}

// MappingReportRow is one line of the operator-facing mapping report.
type MappingReportRow struct {
	SourceUserID int64
	SourceName   string
	TargetUserID int64
	TargetName   string
}

// MappingReport lists every mapping row with resolved names.
func (s *Store) MappingReport(ctx context.Context) ([]MappingReportRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.source_user_id, COALESCE(u1.name, ''), m.target_user_id, COALESCE(u2.name, '')
		FROM user_mapping m
		LEFT OUTER JOIN users u1 ON m.source_user_id = u1.user_id
		LEFT OUTER JOIN target_users u2 ON m.target_user_id = u2.user_id
		ORDER BY m.source_user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query mapping report: %w", err)
	}
	defer rows.Close()

	var out []MappingReportRow
	for rows.Next() {
		var r MappingReportRow
		if err := rows.Scan(&r.SourceUserID, &r.SourceName, &r.TargetUserID, &r.TargetName); err != nil {
			return nil, fmt.Errorf("failed to scan mapping report row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// MappedTargetUserID resolves a source user id to its mapped target id.
// Returns (0, nil) when unresolved.
func (s *Store) MappedTargetUserID(ctx context.Context, sourceUserID int64) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		"SELECT target_user_id FROM user_mapping WHERE target_user_id <> 0 AND source_user_id = ?",
		sourceUserID).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to resolve user mapping: %w", err)
	}
	return id, nil
}

// MappedTargetUserIDByName resolves a source display name to a mapped
// target id. Duplicate display names resolve to the first match in source
// user id order. Returns (0, nil) when unresolved.
func (s *Store) MappedTargetUserIDByName(ctx context.Context, sourceUserName string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		SELECT m.target_user_id FROM user_mapping m
		INNER JOIN users u1 ON m.source_user_id = u1.user_id
		WHERE m.target_user_id <> 0 AND u1.name = ?
		ORDER BY m.source_user_id LIMIT 1`, sourceUserName).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to resolve user mapping by name: %w", err)
	}
	return id, nil
}

// RepresentativeTargetUserID picks the deterministic fallback identity:
// lowest role rank first, then lowest user id. Returns (0, nil) when the
// target user capture is empty.
func (s *Store) RepresentativeTargetUserID(ctx context.Context) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		"SELECT user_id FROM target_users ORDER BY role_type, user_id LIMIT 1").Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to pick representative user: %w", err)
	}
	return id, nil
}
