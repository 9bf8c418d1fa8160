package database

// Archive tables for task resolution history and finalized proposals.
// TaskRecords and archived proposals are written once and never mutated.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS task_records (
		task_id text PRIMARY KEY,
		status text,
		staked_amount bigint,
		reward_amount bigint,
		penalty_amount bigint,
		metrics text,
		resolved_at timestamp
	)`,
	`CREATE TABLE IF NOT EXISTS proposal_archive (
		proposal_id text PRIMARY KEY,
		protocol_name text,
		current_version text,
		proposed_version text,
		proposer_id text,
		status text,
		consensus_ratio_bps bigint,
		votes text,
		created_at timestamp,
		expires_at timestamp
	)`,
}

// InitSchema creates the archive tables if they do not exist.
func (c *Connection) InitSchema() error {
	for _, statement := range schemaStatements {
		if err := c.session.Query(statement).Exec(); err != nil {
			return err
		}
	}
	return nil
}
