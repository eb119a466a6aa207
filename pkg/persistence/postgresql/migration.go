package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Live workflow instances. The graph is a denormalized snapshot:
			-- instances never share graph rows with the template they came from.
			CREATE TABLE workflows (
				id VARCHAR(255) PRIMARY KEY,
				project_id VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL,
				template_id VARCHAR(255),
				status VARCHAR(50) NOT NULL CHECK (status IN ('draft', 'running', 'paused', 'completed', 'failed', 'cancelled')),
				graph JSONB NOT NULL DEFAULT '{}',
				current_node_id VARCHAR(255),
				results JSONB NOT NULL DEFAULT '{}',
				owner VARCHAR(255),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				started_at TIMESTAMP WITH TIME ZONE,
				completed_at TIMESTAMP WITH TIME ZONE,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflows_project_id ON workflows(project_id);
			CREATE INDEX idx_workflows_status ON workflows(status);
			CREATE INDEX idx_workflows_owner ON workflows(owner);
			CREATE INDEX idx_workflows_created_at ON workflows(created_at);
			CREATE INDEX idx_workflows_deleted_at ON workflows(deleted_at);
			CREATE INDEX idx_workflows_template_id ON workflows(template_id);
		`,
		2: `
			-- Workflow templates and execution run records.
			CREATE TABLE workflow_templates (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				graph JSONB NOT NULL DEFAULT '{}',
				default_configs JSONB NOT NULL DEFAULT '{}',
				owner VARCHAR(255) NOT NULL,
				visibility VARCHAR(20) NOT NULL CHECK (visibility IN ('private', 'public')),
				usage_count BIGINT NOT NULL DEFAULT 0,
				published BOOLEAN NOT NULL DEFAULT FALSE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflow_templates_owner ON workflow_templates(owner);
			CREATE INDEX idx_workflow_templates_visibility ON workflow_templates(visibility);
			CREATE INDEX idx_workflow_templates_published ON workflow_templates(published);

			CREATE TABLE workflow_executions (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL,
				log JSONB NOT NULL DEFAULT '[]',
				error_message TEXT,
				results JSONB NOT NULL DEFAULT '{}',
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflow_executions_workflow_id ON workflow_executions(workflow_id);
			CREATE INDEX idx_workflow_executions_status ON workflow_executions(status);
			CREATE INDEX idx_workflow_executions_started_at ON workflow_executions(started_at);
			CREATE INDEX idx_workflow_executions_completed_at ON workflow_executions(completed_at);
		`,
	}
}
