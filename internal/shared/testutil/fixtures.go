package testutil

// CohortCSV is a small two cohort dataset. "treat" is the test arm and
// "ctrl" the control arm. 2025-01-01..02 is the pre period and
// 2025-01-03..04 the post period.
const CohortCSV = "cohort,date,captain_id,metric_value,ao_days,online_days,city,confirmed\n" +
	"treat,2025-01-01,c1,10,1,1,x,yes\n" +
	"treat,2025-01-01,c2,20,1,0,y,\n" +
	"treat,2025-01-03,c1,30,1,1,x,yes\n" +
	"ctrl,2025-01-01,c3,5,1,1,x,yes\n" +
	"ctrl,2025-01-03,c3,15,1,0,x,yes\n" +
	"ctrl,2025-01-03,c4,25,0,0,y,\n"

// MobileNumbersCSV lists four mobile numbers with one duplicate row.
const MobileNumbersCSV = "mobile_number,cohort\n" +
	"9000000001,treat\n" +
	"9000000002,treat\n" +
	"9000000001,treat\n" +
	"9000000003,ctrl\n"

// Period bounds matching CohortCSV
const (
	PreStart  = "2025-01-01"
	PreEnd    = "2025-01-02"
	PostStart = "2025-01-03"
	PostEnd   = "2025-01-04"
)
