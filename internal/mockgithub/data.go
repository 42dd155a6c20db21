package mockgithub

// data.go has the canned data served by the mock and its conversion to a tree of objects

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

type (
	// Data is everything the mock server knows: the viewer (authenticated user) and their repositories
	Data struct {
		Login        string
		Name         string
		Repositories []*Repository
	}

	Repository struct {
		ID           string
		Name         string
		Description  string // empty means null
		Stars        int
		Starred      bool // by the viewer
		UpdatedAt    time.Time
		PullRequests map[string]int // count by PullRequestState
		Issues       map[string]int // count by IssueState
		Branches     map[string][]Commit
	}

	Commit struct {
		Oid         string
		Message     string
		AuthorName  string
		AuthorEmail string
		Date        time.Time
	}

	// Object is a node in the tree that queries are resolved against.  Field values are scalars,
	// *Object, []*Object, nil or a Resolver (called with the field's arguments).
	Object struct {
		Typename string
		Fields   map[string]interface{}
	}

	// Resolver computes the value of a field from its arguments
	Resolver func(args map[string]interface{}) (interface{}, error)
)

// DefaultData returns the data used if none is given to New
func DefaultData() *Data {
	day := func(n int) time.Time { return time.Date(2020, 1, n, 12, 0, 0, 0, time.UTC) }
	return &Data{
		Login: "octocat",
		Name:  "The Octocat",
		Repositories: []*Repository{
			{
				ID:           "MDEwOlJlcG9zaXRvcnkx",
				Name:         "apollo-android",
				Description:  "A strongly-typed, caching GraphQL client",
				Stars:        3200,
				UpdatedAt:    day(20),
				PullRequests: map[string]int{"OPEN": 12, "CLOSED": 40, "MERGED": 900},
				Issues:       map[string]int{"OPEN": 85, "CLOSED": 1500},
				Branches: map[string][]Commit{
					"master": {
						{Oid: "a1b2c3d4e5f60718293a4b5c6d7e8f9012345678", Message: "Update README", AuthorName: "Mona Lisa", AuthorEmail: "mona@example.com", Date: day(19)},
						{Oid: "0f1e2d3c4b5a69788796a5b4c3d2e1f012345678", Message: "Add normalized cache", AuthorName: "Hubot", AuthorEmail: "hubot@example.com", Date: day(18)},
					},
				},
			},
			{
				ID:           "MDEwOlJlcG9zaXRvcnky",
				Name:         "eggql",
				Description:  "Go GraphQL server",
				Stars:        42,
				UpdatedAt:    day(15),
				PullRequests: map[string]int{"OPEN": 1, "MERGED": 30},
				Issues:       map[string]int{"OPEN": 3, "CLOSED": 20},
				Branches: map[string][]Commit{
					"master": {
						{Oid: "1234567890abcdef1234567890abcdef12345678", Message: "Initial commit", AuthorName: "Andrew Phillips", AuthorEmail: "andrew@example.com", Date: day(1)},
					},
				},
			},
			{
				ID:        "MDEwOlJlcG9zaXRvcnkz",
				Name:      "hello-world",
				Stars:     1,
				UpdatedAt: day(2),
			},
		},
	}
}

// repository returns the repository with the name (or nil)
func (d *Data) repository(name string) *Repository {
	for _, r := range d.Repositories {
		if r.Name == name {
			return r
		}
	}
	return nil
}

// repositoryByID returns the repository with the node ID (or nil)
func (d *Data) repositoryByID(id string) *Repository {
	for _, r := range d.Repositories {
		if r.ID == id {
			return r
		}
	}
	return nil
}

// viewer returns the root of the tree for queries
func (d *Data) viewer() *Object {
	return &Object{
		Typename: "User",
		Fields: map[string]interface{}{
			"id":    "MDQ6VXNlcjE=",
			"login": d.Login,
			"name":  d.Name,
			"repositories": Resolver(func(args map[string]interface{}) (interface{}, error) {
				repos := d.sortedRepositories(args["orderBy"])
				total := len(repos)
				if first, ok := toInt(args["first"]); ok && first >= 0 && first < len(repos) {
					repos = repos[:first]
				}
				nodes := make([]*Object, len(repos))
				for i, r := range repos {
					nodes[i] = r.object(d)
				}
				return &Object{
					Typename: "RepositoryConnection",
					Fields:   map[string]interface{}{"totalCount": total, "nodes": nodes},
				}, nil
			}),
			"repository": Resolver(func(args map[string]interface{}) (interface{}, error) {
				name, _ := args["name"].(string)
				r := d.repository(name)
				if r == nil {
					return nil, fmt.Errorf("Could not resolve to a Repository with the name '%s/%s'.", d.Login, name)
				}
				return r.object(d), nil
			}),
		},
	}
}

func (d *Data) sortedRepositories(orderBy interface{}) []*Repository {
	repos := append([]*Repository{}, d.Repositories...)
	order, _ := orderBy.(map[string]interface{})
	if order == nil {
		return repos
	}
	var less func(a, b *Repository) bool
	switch order["field"] {
	case "NAME":
		less = func(a, b *Repository) bool { return strings.ToLower(a.Name) < strings.ToLower(b.Name) }
	case "STARGAZERS":
		less = func(a, b *Repository) bool { return a.Stars < b.Stars }
	default:
		less = func(a, b *Repository) bool { return a.UpdatedAt.Before(b.UpdatedAt) }
	}
	desc := order["direction"] == "DESC"
	sort.SliceStable(repos, func(i, j int) bool {
		if desc {
			return less(repos[j], repos[i])
		}
		return less(repos[i], repos[j])
	})
	return repos
}

func (r *Repository) object(d *Data) *Object {
	var description interface{}
	if r.Description != "" {
		description = r.Description
	}
	return &Object{
		Typename: "Repository",
		Fields: map[string]interface{}{
			"id":               r.ID,
			"name":             r.Name,
			"description":      description,
			"url":              "https://github.com/" + d.Login + "/" + r.Name,
			"stargazerCount":   r.Stars,
			"viewerHasStarred": r.Starred,
			"pullRequests": Resolver(func(args map[string]interface{}) (interface{}, error) {
				return countObject("PullRequestConnection", r.PullRequests, args["states"]), nil
			}),
			"issues": Resolver(func(args map[string]interface{}) (interface{}, error) {
				return countObject("IssueConnection", r.Issues, args["states"]), nil
			}),
			"ref": Resolver(func(args map[string]interface{}) (interface{}, error) {
				name, _ := args["qualifiedName"].(string)
				name = strings.TrimPrefix(name, "refs/heads/")
				commits, ok := r.Branches[name]
				if !ok || len(commits) == 0 {
					return nil, nil
				}
				return &Object{
					Typename: "Ref",
					Fields: map[string]interface{}{
						"id":     r.ID + ":" + name,
						"name":   name,
						"target": commits[0].object(commits[1:]),
					},
				}, nil
			}),
		},
	}
}

// countObject returns a connection with the total of the counts for the states (all if states is nil)
func countObject(typename string, counts map[string]int, states interface{}) *Object {
	total := 0
	if list, ok := states.([]interface{}); ok {
		for _, s := range list {
			if state, ok := s.(string); ok {
				total += counts[state]
			}
		}
	} else {
		for _, n := range counts {
			total += n
		}
	}
	return &Object{Typename: typename, Fields: map[string]interface{}{"totalCount": total}}
}

// object returns the commit object, where parents are the earlier commits (most recent first)
func (c Commit) object(parents []Commit) *Object {
	return &Object{
		Typename: "Commit",
		Fields: map[string]interface{}{
			"id":             "C_" + c.Oid,
			"oid":            c.Oid,
			"abbreviatedOid": c.Oid[:7],
			"message":        c.Message,
			"author": &Object{
				Typename: "GitActor",
				Fields: map[string]interface{}{
					"name":  c.AuthorName,
					"email": c.AuthorEmail,
					"date":  c.Date,
				},
			},
			"history": Resolver(func(args map[string]interface{}) (interface{}, error) {
				history := append([]Commit{c}, parents...)
				if first, ok := toInt(args["first"]); ok && first >= 0 && first < len(history) {
					history = history[:first]
				}
				edges := make([]*Object, len(history))
				for i, h := range history {
					edges[i] = &Object{
						Typename: "CommitEdge",
						Fields: map[string]interface{}{
							"cursor": fmt.Sprintf("%s %d", c.Oid, i),
							"node":   h.object(nil),
						},
					}
				}
				return &Object{
					Typename: "CommitHistoryConnection",
					Fields:   map[string]interface{}{"totalCount": len(parents) + 1, "edges": edges},
				}, nil
			}),
		},
	}
}

// toInt converts an argument value (int64 after variable/literal coercion) to an int
func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int64:
		return int(n), true
	case int:
		return n, true
	case float64:
		return int(n), true
	}
	return 0, false
}
