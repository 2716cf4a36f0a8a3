/*
Package sandbox runs userscripts in a goja JavaScript runtime.

# Overview

A Runtime exposes the scriptkit helpers as JS globals and keeps the
browser's single-threaded model: only the goroutine inside Execute
touches the VM. Timers, sleeps and lifecycle waits run on their own
goroutines and post their completions to an event loop, which Execute
drains before returning.

# Globals

  - uuid(), sleep(ms), setTimeout(fn, ms, ...args), clearTimeout(id)
  - encWbi(params, imgKey, subKey), which also writes wts into params
  - packFormData(obj), returning [[key, value], ...]
  - deepestIterate(obj, cb), getUrlFromFetchInput(input)
  - waitForMoment(moment), rejecting with "Illegal moment"
  - URL, Request, console and a read-only document proxy

require, process, module and exports are removed.

# Usage

	rt, err := sandbox.New(sandbox.DefaultConfig(), sandbox.WithLogger(logger))
	if err != nil {
		return err
	}
	defer rt.Close()

	result, err := rt.Execute(ctx, `(async () => { await sleep(10); return uuid() })()`, doc)

A script that evaluates to a promise yields the settled value. The
configured timeout covers the script and its event loop together. With
ConsoleRate set, console entries past the rate are dropped and counted
in Result.Dropped.

Pool hands runtimes to concurrent scripts, building them on demand and
resetting them between uses.
*/
package sandbox
