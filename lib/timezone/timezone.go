package timezone

import "time"

var Location *time.Location

func init() {
	var err error
	Location, err = time.LoadLocation("Asia/Kolkata")
	if err != nil {
		panic(err)
	}
}

// force timezone to IST because the partner portals report
// disbursal dates in IST while our servers may run in any zone,
// which would shift Year()/Month()/Day() across midnight
func Now() time.Time {
	return time.Now().In(Location)
}
