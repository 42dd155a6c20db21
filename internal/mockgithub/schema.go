package mockgithub

// schema.go has the subset of the GitHub GraphQL schema that the mock server supports

const schema = `
scalar DateTime
scalar URI

enum RepositoryOrderField { CREATED_AT UPDATED_AT PUSHED_AT NAME STARGAZERS }
enum OrderDirection { ASC DESC }
enum RepositoryAffiliation { OWNER COLLABORATOR ORGANIZATION_MEMBER }
enum PullRequestState { OPEN CLOSED MERGED }
enum IssueState { OPEN CLOSED }

input RepositoryOrder {
  field: RepositoryOrderField!
  direction: OrderDirection!
}

input AddStarInput {
  starrableId: ID!
  clientMutationId: String
}

type Query {
  viewer: User!
}

type Mutation {
  addStar(input: AddStarInput!): AddStarPayload
}

type Subscription {
  starEvents(name: String!): StarEvent!
}

interface Node {
  id: ID!
}

interface Starrable {
  id: ID!
  stargazerCount: Int!
  viewerHasStarred: Boolean!
}

interface GitObject {
  id: ID!
  abbreviatedOid: String!
  oid: String!
}

type User implements Node {
  id: ID!
  login: String!
  name: String
  repositories(first: Int, orderBy: RepositoryOrder, ownerAffiliations: [RepositoryAffiliation]): RepositoryConnection!
  repository(name: String!): Repository
}

type RepositoryConnection {
  totalCount: Int!
  nodes: [Repository]
}

type Repository implements Node & Starrable {
  id: ID!
  name: String!
  description: String
  url: URI!
  stargazerCount: Int!
  viewerHasStarred: Boolean!
  pullRequests(states: [PullRequestState!]): PullRequestConnection!
  issues(states: [IssueState!]): IssueConnection!
  ref(qualifiedName: String!): Ref
}

type PullRequestConnection {
  totalCount: Int!
}

type IssueConnection {
  totalCount: Int!
}

type Ref implements Node {
  id: ID!
  name: String!
  target: GitObject
}

type Commit implements Node & GitObject {
  id: ID!
  abbreviatedOid: String!
  oid: String!
  message: String!
  author: GitActor
  history(first: Int): CommitHistoryConnection!
}

type Tree implements Node & GitObject {
  id: ID!
  abbreviatedOid: String!
  oid: String!
}

type GitActor {
  name: String
  email: String
  date: DateTime
}

type CommitHistoryConnection {
  totalCount: Int!
  edges: [CommitEdge]
}

type CommitEdge {
  cursor: String!
  node: Commit
}

type AddStarPayload {
  clientMutationId: String
  starrable: Starrable
}

type StarEvent {
  starredAt: DateTime!
  repository: Repository!
}
`
