package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const consoleHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>ScamShield Review Console</title>
    <meta name="description" content="Held transactions awaiting release or cancel">
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        :root {
            --bg: #0b0c10;
            --panel: #15171c;
            --border: #262a33;
            --text: #f4f4f5;
            --muted: #9ca3af;
            --green: #22c55e;
            --red: #ef4444;
            --amber: #f59e0b;
        }
        body { background: var(--bg); color: var(--text); font: 14px/1.5 -apple-system, "Segoe UI", sans-serif; }
        header { display: flex; justify-content: space-between; align-items: center;
                 padding: 16px 24px; border-bottom: 1px solid var(--border); }
        header h1 { font-size: 16px; font-weight: 600; }
        #live { color: var(--muted); font-size: 12px; }
        #live.on { color: var(--green); }
        main { max-width: 1100px; margin: 24px auto; padding: 0 16px; }
        #stats { display: flex; gap: 12px; margin-bottom: 20px; }
        .stat { background: var(--panel); border: 1px solid var(--border); border-radius: 8px;
                padding: 12px 16px; flex: 1; }
        .stat .label { color: var(--muted); font-size: 12px; }
        .stat .value { font-size: 20px; font-weight: 600; margin-top: 2px; }
        table { width: 100%; border-collapse: collapse; background: var(--panel);
                border: 1px solid var(--border); border-radius: 8px; overflow: hidden; }
        th, td { text-align: left; padding: 10px 12px; border-bottom: 1px solid var(--border); }
        th { color: var(--muted); font-size: 12px; font-weight: 500; }
        .level-high, .level-unknown { color: var(--red); }
        .level-medium { color: var(--amber); }
        .level-low { color: var(--green); }
        button { border: 0; border-radius: 6px; padding: 6px 12px; cursor: pointer;
                 font-weight: 600; color: #fff; margin-right: 6px; }
        button.release { background: var(--green); }
        button.cancel { background: var(--red); }
        button:disabled { opacity: .4; cursor: default; }
        .decided { color: var(--muted); }
    </style>
</head>
<body>
    <header>
        <h1>ScamShield Review Console</h1>
        <span id="live">● connecting</span>
    </header>
    <main>
        <div id="stats">
            <div class="stat"><div class="label">Open alerts</div><div class="value" id="open">–</div></div>
            <div class="stat"><div class="label">Amount held</div><div class="value" id="held">–</div></div>
            <div class="stat"><div class="label">Amount prevented</div><div class="value" id="prevented">–</div></div>
        </div>
        <table>
            <thead><tr>
                <th>Alert</th><th>Transaction</th><th>Destination</th><th>Amount</th>
                <th>Level</th><th>Score</th><th>Decision</th><th></th>
            </tr></thead>
            <tbody id="alerts"></tbody>
        </table>
    </main>
    <script>
        async function refresh() {
            const [alertsRes, statsRes] = await Promise.all([
                fetch('/v1/alerts?limit=100'), fetch('/v1/stats')]);
            const { alerts } = await alertsRes.json();
            const stats = await statsRes.json();
            document.getElementById('open').textContent = stats.byDecision?.none ?? 0;
            document.getElementById('held').textContent = stats.amountHeld.toFixed(2);
            document.getElementById('prevented').textContent = stats.amountPrevented.toFixed(2);
            const tbody = document.getElementById('alerts');
            tbody.innerHTML = '';
            for (const a of alerts) {
                const tr = document.createElement('tr');
                const undecided = a.decision === 'none';
                tr.innerHTML =
                    '<td>' + a.id + '</td>' +
                    '<td>' + a.transactionId + '</td>' +
                    '<td>' + a.dstAccount + '</td>' +
                    '<td>' + a.amount.toFixed(2) + ' ' + a.currency + '</td>' +
                    '<td class="level-' + a.level + '">' + a.level + '</td>' +
                    '<td>' + a.score + '</td>' +
                    '<td class="decided">' + (undecided ? '—' : a.decision) + '</td>' +
                    '<td>' + (undecided
                        ? '<button class="release" onclick="decide(\'' + a.id + '\',\'release\')">Release</button>' +
                          '<button class="cancel" onclick="decide(\'' + a.id + '\',\'cancel\')">Cancel</button>'
                        : '') + '</td>';
                tbody.appendChild(tr);
            }
        }

        async function decide(id, decision) {
            const res = await fetch('/v1/alerts/' + id + '/decision', {
                method: 'POST',
                headers: { 'Content-Type': 'application/json' },
                body: JSON.stringify({ decision })
            });
            const out = await res.json();
            if (res.ok && !out.applied) {
                alert('Already decided: ' + out.decision);
            }
            refresh();
        }

        function connect() {
            const proto = location.protocol === 'https:' ? 'wss://' : 'ws://';
            const ws = new WebSocket(proto + location.host + '/ws');
            const live = document.getElementById('live');
            ws.onopen = () => {
                live.textContent = '● live';
                live.classList.add('on');
                ws.send(JSON.stringify({ eventTypes: ['alert.raised', 'alert.decided'] }));
            };
            ws.onmessage = () => refresh();
            ws.onclose = () => {
                live.textContent = '● reconnecting';
                live.classList.remove('on');
                setTimeout(connect, 3000);
            };
        }

        refresh();
        connect();
        setInterval(refresh, 30000);
    </script>
</body>
</html>`

// consoleHandler serves the reviewer console page.
func consoleHandler(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(consoleHTML))
}
