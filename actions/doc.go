/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package actions talks to the GitHub Actions runner.
//
// Step outputs, exported environment variables and the job summary are
// delivered through the runner's file commands ($GITHUB_OUTPUT, $GITHUB_ENV
// and $GITHUB_STEP_SUMMARY). Log lines are written to stdout, with warnings
// and errors rendered as workflow commands so they surface as annotations:
//
//	runner := actions.FromEnv()
//	ctx = clog.WithLogger(ctx, clog.New(actions.NewHandler(os.Stdout, nil)))
//
//	if err := runner.SetOutput(ctx, "build-number", "42"); err != nil {
//		runner.Fail(err.Error())
//	}
package actions
