package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Create teams table
			CREATE TABLE teams (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				wfm_bu_id VARCHAR(255) NOT NULL,
				time_zone VARCHAR(255) NOT NULL,
				initialized BOOLEAN NOT NULL DEFAULT false,
				past_weeks INT NOT NULL DEFAULT 0,
				future_weeks INT NOT NULL DEFAULT 0,
				week_start_day INT NOT NULL DEFAULT 1,
				sync_interval_seconds INT NOT NULL DEFAULT 600,
				recurrence_cron VARCHAR(255),
				continue_on_error BOOLEAN NOT NULL DEFAULT false,
				draft_mode BOOLEAN NOT NULL DEFAULT false,
				clear_on_first_run BOOLEAN NOT NULL DEFAULT false,
				batch_size INT NOT NULL DEFAULT 20,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_teams_wfm_bu_id ON teams(wfm_bu_id);

			-- Create snapshots table: one row per (team, week start)
			CREATE TABLE snapshots (
				team_id VARCHAR(255) NOT NULL,
				week_start DATE NOT NULL,
				records JSONB NOT NULL DEFAULT '[]',
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				PRIMARY KEY (team_id, week_start)
			);

			-- Create instances table: latest orchestration instance per team
			CREATE TABLE instances (
				team_id VARCHAR(255) PRIMARY KEY,
				run_id VARCHAR(255) NOT NULL,
				state VARCHAR(50) NOT NULL,
				error TEXT,
				carried JSONB,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_instances_state ON instances(state);

			-- Create instance_history table: the replay log
			CREATE TABLE instance_history (
				team_id VARCHAR(255) NOT NULL,
				run_id VARCHAR(255) NOT NULL,
				step_id VARCHAR(512) NOT NULL,
				kind VARCHAR(50) NOT NULL,
				name VARCHAR(255),
				result JSONB,
				error TEXT,
				fire_at TIMESTAMP WITH TIME ZONE,
				fired BOOLEAN NOT NULL DEFAULT false,
				recorded_at TIMESTAMP WITH TIME ZONE NOT NULL,
				PRIMARY KEY (team_id, run_id, step_id)
			);

			CREATE INDEX idx_instance_history_run ON instance_history(team_id, run_id);
		`,
	}
}
