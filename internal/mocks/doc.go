package mocks

//go:generate mockgen -package mocks -destination task_client_mock.go github.com/threefoldtech/shipgate/internal/gate TaskClient
//go:generate mockgen -package mocks -destination source_mock.go github.com/threefoldtech/shipgate/internal/gate Source
//go:generate mockgen -package mocks -destination executor_mock.go github.com/threefoldtech/shipgate/internal/deploy Executor
