package supervisor

import (
	"context"

	"tgvisor/pkg/client"
	"tgvisor/pkg/update"
)

const defaultQueuePerWorker = 16

type dispatchJob struct {
	conn client.Conn
	u    *update.Update
}

// startDispatch returns the function the serve loop hands each update to.
// Without workers every update gets its own goroutine. With workers a fixed
// pool drains a bounded queue and a full queue blocks the pull loop. Workers stop
// with ctx and queued jobs are dropped.
func (s *Supervisor) startDispatch(ctx context.Context) func(client.Conn, *update.Update) {
	if s.workers <= 0 {
		return func(conn client.Conn, u *update.Update) {
			go s.dispatcher.Dispatch(ctx, conn, u)
		}
	}

	size := s.queueSize
	if size <= 0 {
		size = s.workers * defaultQueuePerWorker
	}
	queue := make(chan dispatchJob, size)

	for range s.workers {
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case job := <-queue:
					s.dispatcher.Dispatch(ctx, job.conn, job.u)
				}
			}
		}()
	}

	return func(conn client.Conn, u *update.Update) {
		select {
		case queue <- dispatchJob{conn: conn, u: u}:
		default:
			s.log.Warn("Dispatch queue full, waiting", "queue_size", size, "update_id", u.ID)
			select {
			case queue <- dispatchJob{conn: conn, u: u}:
			case <-ctx.Done():
			}
		}
	}
}
