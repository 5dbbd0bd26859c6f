package sqlinline

const QSelectIntegrationToken = `--sql e04eb30b-5c1b-47f7-8097-274355295dd9
select token
from integration_tokens
where provider = $1::text
limit 1;
`

const QUpsertIntegrationToken = `--sql 9314e8ac-d422-42ad-9e24-4219f1dd72a2
insert into integration_tokens (id, provider, token, properties, created_at, updated_at)
values (gen_random_uuid(), $1::text, $2::text, coalesce($3::jsonb, '{}'::jsonb), now(), now())
on conflict (provider) do update set
    token = excluded.token,
    properties = excluded.properties,
    updated_at = now();
`
