package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,
	`DO $$
	BEGIN
		IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'user_role') THEN
			CREATE TYPE user_role AS ENUM ('ADMIN', 'STAFF');
		END IF;
	END
	$$;`,
	`DO $$
	BEGIN
		IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'quote_status') THEN
			CREATE TYPE quote_status AS ENUM ('pending', 'approved', 'rejected');
		END IF;
	END
	$$;`,
	`DO $$
	BEGIN
		IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'token_action') THEN
			CREATE TYPE token_action AS ENUM ('approve', 'reject');
		END IF;
	END
	$$;`,
	`DO $$
	BEGIN
		IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'work_order_status') THEN
			CREATE TYPE work_order_status AS ENUM ('pendiente_asignacion', 'asignada', 'en_progreso', 'listo', 'entregado');
		END IF;
	END
	$$;`,
	`DO $$
	BEGIN
		IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'notification_status') THEN
			CREATE TYPE notification_status AS ENUM ('sent', 'failed');
		END IF;
	END
	$$;`,
	`CREATE SEQUENCE IF NOT EXISTS quote_number_seq START 1000;`,
	`CREATE SEQUENCE IF NOT EXISTS work_order_number_seq START 1000;`,
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		name VARCHAR(200) NOT NULL,
		email VARCHAR(200) NOT NULL,
		password_hash VARCHAR(100) NOT NULL,
		role user_role NOT NULL DEFAULT 'STAFF',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		failed_logins INT NOT NULL DEFAULT 0,
		locked_until TIMESTAMPTZ,
		last_login_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		deleted_at TIMESTAMPTZ,
		deleted_by UUID
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users (email) WHERE deleted_at IS NULL;`,
	`CREATE TABLE IF NOT EXISTS clients (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		name VARCHAR(200) NOT NULL,
		phone VARCHAR(32),
		email VARCHAR(200),
		address TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		deleted_at TIMESTAMPTZ,
		deleted_by UUID
	);`,
	`CREATE INDEX IF NOT EXISTS idx_clients_name ON clients (name);`,
	`CREATE TABLE IF NOT EXISTS mechanics (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		name VARCHAR(200) NOT NULL,
		specialty VARCHAR(200),
		phone VARCHAR(32),
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		deleted_at TIMESTAMPTZ,
		deleted_by UUID
	);`,
	`CREATE TABLE IF NOT EXISTS quotes (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		number BIGINT NOT NULL,
		client_id UUID NOT NULL REFERENCES clients(id),
		vehicle_brand VARCHAR(100) NOT NULL,
		vehicle_model VARCHAR(100) NOT NULL,
		vehicle_year INT NOT NULL,
		vehicle_plate VARCHAR(32) NOT NULL,
		vehicle_mileage INT,
		problem TEXT NOT NULL,
		proposed_work TEXT NOT NULL,
		estimated_cost DOUBLE PRECISION NOT NULL,
		valid_until TIMESTAMPTZ NOT NULL,
		status quote_status NOT NULL DEFAULT 'pending',
		email_sent BOOLEAN NOT NULL DEFAULT FALSE,
		email_sent_at TIMESTAMPTZ,
		email_attempts INT NOT NULL DEFAULT 0,
		work_order_id UUID,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		deleted_at TIMESTAMPTZ,
		deleted_by UUID
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_quotes_number ON quotes (number);`,
	`CREATE INDEX IF NOT EXISTS idx_quotes_client_id ON quotes (client_id);`,
	`CREATE INDEX IF NOT EXISTS idx_quotes_status ON quotes (status);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_quotes_work_order_id ON quotes (work_order_id) WHERE work_order_id IS NOT NULL;`,
	`CREATE TABLE IF NOT EXISTS quote_tokens (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		quote_id UUID NOT NULL REFERENCES quotes(id) ON DELETE CASCADE,
		action token_action NOT NULL,
		token VARCHAR(64) NOT NULL,
		used_at TIMESTAMPTZ,
		used_ip VARCHAR(64),
		used_user_agent VARCHAR(512),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_quote_tokens_token ON quote_tokens (token);`,
	`CREATE INDEX IF NOT EXISTS idx_quote_tokens_quote_id ON quote_tokens (quote_id);`,
	`CREATE TABLE IF NOT EXISTS work_orders (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		number BIGINT NOT NULL,
		quote_id UUID NOT NULL REFERENCES quotes(id),
		client_id UUID NOT NULL REFERENCES clients(id),
		mechanic_id UUID REFERENCES mechanics(id),
		vehicle_brand VARCHAR(100) NOT NULL,
		vehicle_model VARCHAR(100) NOT NULL,
		vehicle_year INT NOT NULL,
		vehicle_plate VARCHAR(32) NOT NULL,
		vehicle_mileage INT,
		description TEXT NOT NULL,
		estimated_cost DOUBLE PRECISION NOT NULL,
		final_cost DOUBLE PRECISION,
		status work_order_status NOT NULL DEFAULT 'pendiente_asignacion',
		ready_email_sent BOOLEAN NOT NULL DEFAULT FALSE,
		estimated_delivery TIMESTAMPTZ,
		delivered_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		deleted_at TIMESTAMPTZ,
		deleted_by UUID
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_work_orders_number ON work_orders (number);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_work_orders_quote_id ON work_orders (quote_id);`,
	`CREATE INDEX IF NOT EXISTS idx_work_orders_client_id ON work_orders (client_id);`,
	`CREATE INDEX IF NOT EXISTS idx_work_orders_mechanic_id ON work_orders (mechanic_id);`,
	`CREATE INDEX IF NOT EXISTS idx_work_orders_status ON work_orders (status);`,
	`CREATE TABLE IF NOT EXISTS work_order_status_changes (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		work_order_id UUID NOT NULL REFERENCES work_orders(id) ON DELETE CASCADE,
		from_status work_order_status NOT NULL,
		to_status work_order_status NOT NULL,
		actor_id UUID,
		actor_label VARCHAR(200) NOT NULL,
		note VARCHAR(500),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_work_order_status_changes_work_order_id ON work_order_status_changes (work_order_id);`,
	`CREATE TABLE IF NOT EXISTS work_order_notifications (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		work_order_id UUID NOT NULL REFERENCES work_orders(id) ON DELETE CASCADE,
		kind VARCHAR(50) NOT NULL,
		status notification_status NOT NULL,
		attempts INT NOT NULL DEFAULT 1,
		error TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_work_order_notifications_work_order_id ON work_order_notifications (work_order_id);`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		actor_id UUID,
		actor_label VARCHAR(200) NOT NULL,
		action VARCHAR(100) NOT NULL,
		entity_type VARCHAR(50) NOT NULL,
		entity_id UUID NOT NULL,
		metadata JSONB,
		ip VARCHAR(64),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_audit_logs_actor_id ON audit_logs (actor_id);`,
	`CREATE INDEX IF NOT EXISTS idx_audit_logs_action ON audit_logs (action);`,
	`CREATE INDEX IF NOT EXISTS idx_audit_logs_entity ON audit_logs (entity_type, entity_id);`,
	`CREATE OR REPLACE FUNCTION set_updated_at()
	RETURNS TRIGGER AS $$
	BEGIN
		NEW.updated_at = NOW();
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql;`,
	`DO $$
	DECLARE
		t TEXT;
	BEGIN
		FOREACH t IN ARRAY ARRAY['users', 'clients', 'mechanics', 'quotes', 'work_orders'] LOOP
			IF NOT EXISTS (SELECT 1 FROM pg_trigger WHERE tgname = 'trg_' || t || '_updated_at') THEN
				EXECUTE format('CREATE TRIGGER trg_%s_updated_at BEFORE UPDATE ON %I FOR EACH ROW EXECUTE PROCEDURE set_updated_at()', t, t);
			END IF;
		END LOOP;
	END
	$$;`,
}

func runMigrations(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
