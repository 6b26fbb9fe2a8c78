package redis

// Redis key naming conventions for clipjobs data.
// All keys are prefixed with "clipjobs:" to avoid collisions.

const keyPrefix = "clipjobs:"

// jobKey returns the key for a job record: clipjobs:job:{id}
func jobKey(id string) string { return keyPrefix + "job:" + id }

// userJobsKey returns the Set key indexing a user's job IDs:
// clipjobs:user:{userID}:jobs
func userJobsKey(userID string) string { return keyPrefix + "user:" + userID + ":jobs" }

// activeJobsKey is the Sorted Set of active (non-terminal) job IDs,
// scored by creation time in unix milliseconds. Used for queue
// introspection and the TTL cleanup sweep.
const activeJobsKey = keyPrefix + "jobs:active"
