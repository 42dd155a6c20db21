// Package ghgql is a client of the GitHub GraphQL API with a normalized, persistent cache.
//
// An App holds the settings and (once first used) the client.  The client authenticates every
// request with the token, caches each repository once by its ID (whatever query returned it) and
// keeps the cache in a database on the local machine, so results are available offline and
// across runs.  For example:
//
//	app := ghgql.New(ghgql.Token(token), ghgql.CacheDir(dir))
//	defer app.Close()
//	ds := app.GetDataSource(ghgql.Reactive)
//	ds.FetchRepositories(ctx)
//	repos := <-ds.Repositories()
//
// The data sources offer the same operations in different styles: Callback (results passed to
// callbacks as they arrive), Reactive (the cached result is delivered at once, then the result
// from the server), and StructuredConcurrency (blocking calls in goroutines of a group that is
// cancelled as a whole).
package ghgql
