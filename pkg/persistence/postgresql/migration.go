package postgresql

// migrations returns the schema migrations for the automation runner,
// keyed by version.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS automations (
				id UUID PRIMARY KEY,
				org_id TEXT NOT NULL,
				name TEXT NOT NULL,
				trigger JSONB NOT NULL DEFAULT '{}',
				graph JSONB NOT NULL DEFAULT '{}',
				status TEXT NOT NULL DEFAULT 'draft',
				requires_approval BOOLEAN NOT NULL DEFAULT FALSE,
				approval_status TEXT,
				last_triggered_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_automations_org_status
				ON automations(org_id, status);

			CREATE TABLE IF NOT EXISTS automation_runs (
				id UUID PRIMARY KEY,
				org_id TEXT NOT NULL,
				automation_id UUID NOT NULL,
				context JSONB NOT NULL DEFAULT '{}',
				status TEXT NOT NULL DEFAULT 'running',
				last_error TEXT,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				finished_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX IF NOT EXISTS idx_automation_runs_automation
				ON automation_runs(automation_id, started_at DESC);

			CREATE TABLE IF NOT EXISTS automation_steps (
				id UUID PRIMARY KEY,
				run_id UUID NOT NULL,
				node_id TEXT NOT NULL,
				node_type TEXT NOT NULL,
				status TEXT NOT NULL,
				input JSONB,
				output JSONB,
				error TEXT,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				finished_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_automation_steps_run
				ON automation_steps(run_id, started_at);

			CREATE TABLE IF NOT EXISTS delayed_jobs (
				id UUID PRIMARY KEY,
				org_id TEXT NOT NULL,
				automation_id UUID NOT NULL,
				run_id UUID NOT NULL,
				node_id TEXT NOT NULL,
				execute_at TIMESTAMP WITH TIME ZONE NOT NULL,
				payload JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_delayed_jobs_execute_at
				ON delayed_jobs(execute_at);

			CREATE TABLE IF NOT EXISTS automation_events (
				id UUID PRIMARY KEY,
				org_id TEXT NOT NULL,
				event_type TEXT NOT NULL,
				subject_type TEXT,
				subject_id TEXT,
				payload JSONB NOT NULL DEFAULT '{}',
				processed BOOLEAN NOT NULL DEFAULT FALSE,
				occurred_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_automation_events_unprocessed
				ON automation_events(occurred_at) WHERE NOT processed;
		`,
		2: `
			CREATE TABLE IF NOT EXISTS outbound_emails (
				id UUID PRIMARY KEY,
				org_id TEXT NOT NULL,
				to_address TEXT NOT NULL,
				cc_address TEXT,
				bcc_address TEXT,
				subject TEXT,
				body TEXT,
				deal_id TEXT,
				contact_id TEXT,
				status TEXT NOT NULL,
				schedule_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE TABLE IF NOT EXISTS deals (
				id TEXT PRIMARY KEY,
				org_id TEXT NOT NULL,
				stage TEXT,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE TABLE IF NOT EXISTS tasks (
				id UUID PRIMARY KEY,
				org_id TEXT NOT NULL,
				title TEXT NOT NULL,
				due_date TEXT,
				deal_id TEXT,
				contact_id TEXT,
				priority TEXT NOT NULL DEFAULT 'Medium',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE TABLE IF NOT EXISTS proformas (
				id UUID PRIMARY KEY,
				org_id TEXT NOT NULL,
				number TEXT NOT NULL,
				sales_order_id TEXT NOT NULL,
				currency TEXT NOT NULL DEFAULT 'EUR',
				subtotal_cents BIGINT NOT NULL DEFAULT 0,
				tax_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
				tax_cents BIGINT NOT NULL DEFAULT 0,
				total_cents BIGINT NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE TABLE IF NOT EXISTS stock_reservations (
				id UUID PRIMARY KEY,
				org_id TEXT NOT NULL,
				run_id UUID,
				product_id TEXT NOT NULL,
				qty DOUBLE PRECISION NOT NULL,
				location_id TEXT,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);
		`,
	}
}
