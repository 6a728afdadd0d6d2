package timescaledb

const createExtensionSQL = `CREATE EXTENSION IF NOT EXISTS timescaledb CASCADE;`

const createGatesHypertableSQL = `SELECT create_hypertable('peaktree_gates', 'time', if_not_exists => TRUE, migrate_data => TRUE);`

const createNodesHypertableSQL = `SELECT create_hypertable('peaktree_nodes', 'time', if_not_exists => TRUE, migrate_data => TRUE);`

const createGatesIndexSQL = `CREATE INDEX IF NOT EXISTS peaktree_gates_station_time_idx ON peaktree_gates (station, time DESC);`

const createNodesIndexSQL = `CREATE INDEX IF NOT EXISTS peaktree_nodes_gate_idx ON peaktree_nodes (station, time DESC, gate, node_id);`

// hourly tree statistics per station
const createHourlyViewSQL = `CREATE MATERIALIZED VIEW IF NOT EXISTS peaktree_gates_1h
WITH (timescaledb.continuous) AS
SELECT
    time_bucket('1 hour', time) AS bucket,
    station,
    count(*) AS gates,
    count(*) FILTER (WHERE state = 'no_signal') AS no_signal,
    count(*) FILTER (WHERE state = 'pruned') AS pruned,
    count(*) FILTER (WHERE state = 'failed') AS failed,
    avg(no_nodes) AS avg_nodes,
    max(no_nodes) AS max_nodes,
    avg(noise_co_dbz) AS avg_noise_co_dbz
FROM peaktree_gates
GROUP BY bucket, station
WITH NO DATA;`

const addHourlyPolicySQL = `SELECT add_continuous_aggregate_policy('peaktree_gates_1h',
    start_offset => INTERVAL '3 days',
    end_offset => INTERVAL '1 hour',
    schedule_interval => INTERVAL '1 hour',
    if_not_exists => TRUE);`
