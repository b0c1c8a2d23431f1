package scheduler

// Package scheduler drives the recurring pipeline work:
// - short-horizon bar collection every 5 minutes during US market hours
// - long-horizon bar collection daily after the close
// - forward-return labeling and trade signal marking daily
// - weekly cleanup of old staging snapshots and expired bar rows
//
// The jobs are implemented in jobs.go
