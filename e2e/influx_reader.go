package e2e

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

// influxReader reads back what the Influx sink wrote during a test.
type influxReader struct {
	org    string
	bucket string
	client influxdb2.Client
	query  api.QueryAPI
}

// newInfluxReader connects to a running InfluxDB instance.
func newInfluxReader(url, org, bucket, token string) *influxReader {
	c := influxdb2.NewClient(url, token)
	return &influxReader{org: org, bucket: bucket, client: c, query: c.QueryAPI(org)}
}

// CountPoints returns the number of points of measurement written in the
// last window.
func (r *influxReader) CountPoints(ctx context.Context, measurement string, window time.Duration) (int, error) {
	flux := fmt.Sprintf(`from(bucket:"%s") |> range(start:-%s) |> filter(fn:(r) => r._measurement == "%s")`,
		r.bucket, window, measurement)
	res, err := r.query.Query(ctx, flux)
	if err != nil {
		return 0, err
	}
	defer res.Close()
	n := 0
	for res.Next() {
		n++
	}
	return n, res.Err()
}

// SetupBucket makes sure the bucket exists, creating the organisation and
// bucket when the container was not started in setup mode.
func (r *influxReader) SetupBucket(ctx context.Context) error {
	org, err := r.client.OrganizationsAPI().FindOrganizationByName(ctx, r.org)
	if err != nil || org == nil {
		if org, err = r.client.OrganizationsAPI().CreateOrganizationWithName(ctx, r.org); err != nil {
			return fmt.Errorf("create org: %w", err)
		}
	}
	if b, err := r.client.BucketsAPI().FindBucketByName(ctx, r.bucket); err == nil && b != nil {
		return nil
	}
	if _, err := r.client.BucketsAPI().CreateBucketWithName(ctx, org, r.bucket); err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}
	return nil
}

// Close releases the underlying client resources.
func (r *influxReader) Close() { r.client.Close() }
