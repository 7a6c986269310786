package warehouse

import "captainpulse/internal/config"

// Time aggregation levels accepted by the AO funnel query.
var TimeLevels = []string{"daily", "weekly", "monthly"}

// Time-of-day levels accepted by the AO funnel query.
var TODLevels = []string{"daily", "morning", "afternoon", "evening", "night", "all"}

const mysqlCaptainQuery = `
SELECT captain_id, mobile_number
FROM captain_supply_journey_summary
WHERE registration_date > '2020-01-01'
  AND mobile_number IN (:ids)`

const postgresCaptainQuery = `
SELECT captain_id, mobile_number
FROM captain_supply_journey_summary
WHERE registration_date > '2020-01-01'
  AND mobile_number = ANY(:ids)`

// aoFunnelSelect is shared by both dialects; only the id predicate differs.
const aoFunnelSelect = `
SELECT
  lower(city) AS city,
  captain_id,
  yyyymmdd AS time,
  :time_level AS time_level,
  :tod_level AS tod_level,
  COUNT(DISTINCT CASE WHEN COALESCE(app_open_events, 0) > 0 THEN yyyymmdd END) AS ao_days,
  COUNT(DISTINCT CASE WHEN COALESCE(online_events, 0) > 0 THEN yyyymmdd END) AS online_days,
  COUNT(DISTINCT CASE WHEN COALESCE(gross_pings, 0) > 0 THEN yyyymmdd END) AS gross_days,
  COUNT(DISTINCT CASE WHEN COALESCE(accepted_pings, 0) > 0 THEN yyyymmdd END) AS accepted_days,
  COUNT(DISTINCT CASE WHEN COALESCE(net_rides, 0) > 0 THEN yyyymmdd END) AS net_days,
  AVG(CASE WHEN COALESCE(online_events, 0) > 0 THEN COALESCE(login_hours, 0) END) AS total_lh,
  SUM(COALESCE(net_rides, 0)) / NULLIF(SUM(COALESCE(accepted_pings, 0)), 0) AS dapr
FROM captain_base_metrics
WHERE yyyymmdd BETWEEN :start AND :end
  AND captain_id `

const aoFunnelGroup = `
GROUP BY 1, 2, 3`

// defaultQueries returns the built-in captain lookup and AO funnel queries
// for a driver.
func defaultQueries(driver string) (captain, aoFunnel string) {
	if driver == config.DriverPostgres {
		return postgresCaptainQuery, aoFunnelSelect + "= ANY(:ids)" + aoFunnelGroup
	}
	return mysqlCaptainQuery, aoFunnelSelect + "IN (:ids)" + aoFunnelGroup
}
