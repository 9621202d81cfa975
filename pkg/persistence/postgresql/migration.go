package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE runs (
				id UUID PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				project_id VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('created', 'running', 'completed', 'failed', 'cancelled')),
				idempotency_key VARCHAR(255),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				finished_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_runs_workflow_id ON runs(workflow_id);
			CREATE INDEX idx_runs_status ON runs(status);
			CREATE UNIQUE INDEX idx_runs_idempotency
				ON runs(workflow_id, idempotency_key)
				WHERE idempotency_key IS NOT NULL AND idempotency_key <> '';

			CREATE TABLE run_events (
				run_id UUID NOT NULL,
				sequence BIGINT NOT NULL,
				workflow_id VARCHAR(255) NOT NULL,
				event_type VARCHAR(50) NOT NULL,
				payload JSONB,
				executor_id VARCHAR(255),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				PRIMARY KEY (run_id, sequence)
			);

			CREATE TABLE confirmation_requests (
				id UUID PRIMARY KEY,
				run_id UUID NOT NULL,
				workflow_id VARCHAR(255) NOT NULL,
				node_id VARCHAR(255) NOT NULL,
				default_decision VARCHAR(10) NOT NULL,
				resolved_decision VARCHAR(10),
				source VARCHAR(20),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				resolved_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_confirmation_requests_run_id ON confirmation_requests(run_id);

			CREATE TABLE workflows (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				nodes JSONB NOT NULL DEFAULT '[]',
				edges JSONB NOT NULL DEFAULT '[]',
				variables JSONB,
				metadata JSONB,
				owner VARCHAR(255),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);
		`,
	}
}
